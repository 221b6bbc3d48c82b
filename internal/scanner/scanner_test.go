package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rockingester/internal/scanner"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
}

func TestParse(t *testing.T) {
	s, err := scanner.New(scanner.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name           string
		input          string
		wantBarcode    string
		wantInstrument string
		wantPlateType  string
		wantErr        bool
	}{
		{name: "standard", input: "98ab_2023-04-06_RI1000-0276-3drop", wantBarcode: "98ab", wantInstrument: "RI1000-0276", wantPlateType: "3drop"},
		{name: "other plate type", input: "97we_2024-01-31_RI1000-0001-2drop", wantBarcode: "97we", wantInstrument: "RI1000-0001", wantPlateType: "2drop"},
		{name: "missing date", input: "98ab_RI1000-0276-3drop", wantErr: true},
		{name: "invalid date", input: "98ab_2023-13-40_RI1000-0276-3drop", wantErr: true},
		{name: "free text", input: "notes", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Parse(tc.input)
			if tc.wantErr {
				if !errors.Is(err, scanner.ErrUnparseable) {
					t.Fatalf("expected ErrUnparseable, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if got.Barcode != tc.wantBarcode || got.Instrument != tc.wantInstrument || got.PlateType != tc.wantPlateType {
				t.Fatalf("unexpected candidate: %#v", got)
			}
			if got.Date.IsZero() {
				t.Fatalf("expected date to be parsed, got %v", got.Date)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	s, err := scanner.New(scanner.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := s.Parse("98ab_2023-04-06_RI1000-0276-3drop")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := time.Date(2023, time.April, 6, 0, 0, 0, 0, time.UTC)
	if !got.Date.Equal(want) {
		t.Fatalf("date = %v, want %v", got.Date, want)
	}
}

func TestScanSkipsUnparseableAndFiles(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"98ab_2023-04-06_RI1000-0276-3drop",
		"98ac_2023-04-06_RI1000-0276-3drop",
		"scratch",
		".hidden_2023-04-06_RI1000-0276-3drop",
	)
	if err := os.WriteFile(filepath.Join(root, "99zz_2023-04-06_RI1000-0276-3drop"), []byte("file"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	s, err := scanner.New(scanner.Options{Root: root})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	candidates, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %#v", len(candidates), candidates)
	}
	if candidates[0].Barcode != "98ab" || candidates[1].Barcode != "98ac" {
		t.Fatalf("unexpected candidate order: %q, %q", candidates[0].Barcode, candidates[1].Barcode)
	}
	if candidates[0].Path != filepath.Join(root, "98ab_2023-04-06_RI1000-0276-3drop") || candidates[0].Depth != 1 {
		t.Fatalf("unexpected candidate: %#v", candidates[0])
	}
}

func TestScanDescendsToMaxDepth(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"2023/98ab_2023-04-06_RI1000-0276-3drop",
		"2023/04/98ad_2023-04-06_RI1000-0276-3drop",
		"98ac_2023-04-06_RI1000-0276-3drop",
	)

	shallow, err := scanner.New(scanner.Options{Root: root, MaxDepth: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := shallow.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(got) != 1 || got[0].Barcode != "98ac" {
		t.Fatalf("expected only top-level candidate, got %#v", got)
	}

	deep, err := scanner.New(scanner.Options{Root: root, MaxDepth: 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err = deep.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	barcodes := map[string]int{}
	for _, c := range got {
		barcodes[c.Barcode] = c.Depth
	}
	if barcodes["98ab"] != 2 || barcodes["98ac"] != 1 || barcodes["98ad"] != 3 || len(barcodes) != 3 {
		t.Fatalf("unexpected candidates: %v", barcodes)
	}
}

func TestScanExcludesArchiveDirectories(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"98ab_2023-04-06_RI1000-0276-3drop",
		"ingested/98ae_2023-04-06_RI1000-0276-3drop",
		"nobarcode/98af_2023-04-06_RI1000-0276-3drop",
	)
	s, err := scanner.New(scanner.Options{
		Root:     root,
		MaxDepth: 2,
		Exclude:  []string{filepath.Join(root, "ingested"), filepath.Join(root, "nobarcode")},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(got) != 1 || got[0].Barcode != "98ab" {
		t.Fatalf("expected archives to be excluded, got %#v", got)
	}
}

func TestScanMissingRoot(t *testing.T) {
	s, err := scanner.New(scanner.Options{Root: filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.Scan(context.Background()); !errors.Is(err, scanner.ErrRootUnavailable) {
		t.Fatalf("expected ErrRootUnavailable, got %v", err)
	}
}

func TestCandidatesStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"98ab_2023-04-06_RI1000-0276-3drop",
		"98ac_2023-04-06_RI1000-0276-3drop",
		"98ad_2023-04-06_RI1000-0276-3drop",
	)
	s, err := scanner.New(scanner.Options{Root: root})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen int
	var lastErr error
	for candidate, err := range s.Candidates(ctx) {
		if err != nil {
			lastErr = err
			break
		}
		seen++
		if candidate.Barcode == "98ab" {
			cancel()
		}
	}
	if seen != 1 {
		t.Fatalf("expected iteration to stop after cancel, saw %d candidates", seen)
	}
	if !errors.Is(lastErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", lastErr)
	}
}

func TestNewRejectsPatternWithoutGroups(t *testing.T) {
	if _, err := scanner.New(scanner.Options{Root: t.TempDir(), Pattern: `^(?P<barcode>\w+)$`}); err == nil {
		t.Fatal("expected error for pattern missing date and instrument groups")
	}
}

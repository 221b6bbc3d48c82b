package daemon_test

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"

	"rockingester/internal/collector"
	"rockingester/internal/config"
	"rockingester/internal/daemon"
	"rockingester/internal/testsupport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	coll, err := collector.New(cfg, store)
	if err != nil {
		t.Fatalf("collector.New: %v", err)
	}
	d, err := daemon.New(cfg, store, coll, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance on the same log dir to be refused")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("expected second instance to start once the lock is free: %v", err)
	}
	second.Stop()
}

func TestStartFailsPreflight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.RemoveAll(cfg.Collector.NobarcodeDirectory); err != nil {
		t.Fatal(err)
	}
	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected preflight failure for missing nobarcode directory")
	}
	if d.Status().Running {
		t.Fatal("daemon must not run after failed preflight")
	}

	// The lock must have been released.
	if err := os.MkdirAll(cfg.Collector.NobarcodeDirectory, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start after fixing preflight failed: %v", err)
	}
}

func TestDaemonRunsPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)
	testsupport.MakePlateDir(t, cfg.Collector.ScrapableRoot, testsupport.PlateDir98ac, "98ac_A01_1.jpg")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for d.Status().Collector.LastPass == nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for a pass")
		}
		time.Sleep(10 * time.Millisecond)
	}
	d.Stop()

	last := d.Status().Collector.LastPass
	if last.Held != 1 {
		t.Fatalf("expected unmatched directory to be held, got %+v", last)
	}
}

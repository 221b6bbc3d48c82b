package dataface

import "time"

// CrystalPlate is a physical plate known to the lab metadata system.
type CrystalPlate struct {
	UUID               string
	Barcode            string
	FormulatrixPlateID int64
	Visit              string
	CreatedAt          time.Time
}

// CrystalWell records one ingested well image. Filename is the location of
// the image inside the ingested archive and is unique across the store.
type CrystalWell struct {
	UUID             string
	Filename         string
	Directory        string
	CrystalPlateUUID string
	Position         string
	DiscoveredAt     time.Time
	CreatedAt        time.Time
}

package utils

import "time"

// Save delays used when coalescing "mark dirty, flush later" requests
const (
	ShortSaveDelay = 5 * time.Second
	LongSaveDelay  = 15 * time.Minute
	HugeSaveDelay  = 60 * time.Minute
)

// AuthSaveInterval is the minimum interval between two credential last-use saves
const AuthSaveInterval = 30 * time.Minute

// SweepInterval is the default resolution of the periodic rule sweep
const SweepInterval = time.Second

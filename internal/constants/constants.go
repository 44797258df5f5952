package constants

import "time"

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	ImportTimeout      = 5 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// ProfileBestN is how many of a user's top chart ratings are
	// averaged into a profile rating. Fewer PBs than this yields a
	// null rating, never a partial average.
	ProfileBestN = 10

	// DefaultOrphanThreshold is how many distinct players must submit
	// an unrecognized chart before it is promoted.
	DefaultOrphanThreshold = 3

	// ImportConcurrency bounds per-record conversion/persistence
	// parallelism inside one import batch.
	ImportConcurrency = 8
)

const (
	DefaultLockRetries   = 7
	DefaultLockBaseDelay = 250 * time.Millisecond
)

package database

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one pipeline invocation recorded in the ledger.
type Run struct {
	ID               string
	ScanDate         string
	ScanFile         *string
	Status           string
	Incoming         int
	Added            int
	Duplicates       int
	Invalid          int
	TotalSignals     int
	UniqueEmbeddings int
	InfluenceNNZ     int
	SnapshotPath     *string
	Error            *string
	StartedAt        *string
	FinishedAt       *string
}

// RunOutcome carries the counters written when a run finishes.
type RunOutcome struct {
	Incoming         int
	Added            int
	Duplicates       int
	Invalid          int
	TotalSignals     int
	UniqueEmbeddings int
	InfluenceNNZ     int
	SnapshotPath     string
}

// Step is the recorded outcome of one pipeline step.
type Step struct {
	Position int
	Name     string
	Summary  string
	Error    *string
}

// Stats contains aggregate ledger statistics.
type Stats struct {
	TotalRuns       int
	SucceededRuns   int
	FailedRuns      int
	TotalAdded      int
	TotalDuplicates int
	LastScanDate    *string
}

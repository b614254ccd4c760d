package domain

import "time"

// FileStatus is the ledger status of a processing attempt.
type FileStatus string

// Ledger statuses.
const (
	StatusPending FileStatus = "pending"
	StatusSuccess FileStatus = "success"
	StatusFailed  FileStatus = "failed"
)

// LocalAccount is the account scope used for local-mode files.
const LocalAccount = ""

// AssignedTag is an accepted tag together with the confidence it was accepted at.
type AssignedTag struct {
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Primary    bool   `json:"primary,omitempty"`
}

// ProcessedFile is the ledger record for one piece of content.
// (Fingerprint, AccountID) is unique.
type ProcessedFile struct {
	ID          string
	Fingerprint string
	AccountID   string
	SourceID    string
	SourceName  string
	Status      FileStatus
	OutputPath  string
	ArchivePath string
	Title       string
	Tags        []AssignedTag
	Duration    time.Duration
	Attempts    int
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TagNames returns the tag names in accepted order.
func (f *ProcessedFile) TagNames() []string {
	names := make([]string, len(f.Tags))
	for i, t := range f.Tags {
		names[i] = t.Name
	}
	return names
}

// ProcessOutcome is what the pipeline returns for one item.
type ProcessOutcome struct {
	Record ProcessedFile

	// AlreadyProcessed is true when a prior success was returned unchanged.
	AlreadyProcessed bool
}

// LedgerStats counts ledger records per account and status.
type LedgerStats struct {
	AccountID string
	Pending   int
	Success   int
	Failed    int
	LastAt    time.Time
}

// Total returns the number of records.
func (s LedgerStats) Total() int {
	return s.Pending + s.Success + s.Failed
}

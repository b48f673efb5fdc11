package dto

type InstitutionOutcome string

const (
	InstitutionCreated  InstitutionOutcome = "created"
	InstitutionUpdated  InstitutionOutcome = "updated"
	InstitutionRejected InstitutionOutcome = "rejected"
)

type InstitutionResult struct {
	Outcome InstitutionOutcome `json:"outcome"`
	Slug    string             `json:"slug"`
	Reason  string             `json:"reason,omitempty"`
}

type MigrationReport struct {
	Migrated int      `json:"migrated"`
	Skipped  []string `json:"skipped,omitempty"` // handles left untouched
}

type SweepResult struct {
	Deleted int64 `json:"deleted"`
}

package version

const (
	// Version tracks overall driver semantics; bump when the MIF grammar
	// or the outcome schema changes.
	Version = "v0.2.0"
	// OutcomeVersion is the canonical version for outcome.json records.
	OutcomeVersion = "v0.2.0"
)

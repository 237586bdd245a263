package constants

// JobStatus is the canonical status for an in-flight or terminal job.
type JobStatus string

// Stable values (these exact strings go over the wire).
const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusExtractingText   JobStatus = "extracting_text"
	JobStatusExtractingFields JobStatus = "extracting_fields"
	JobStatusGeneratingOutput JobStatus = "generating_output"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// IsTerminal reports whether a job in this status will never mutate again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

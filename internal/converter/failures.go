package converter

import (
	"fmt"

	"rhythm-tracker/internal/domain"
)

// InvalidScoreError marks a malformed source record. It is reported
// per-record on the import and never aborts the batch.
type InvalidScoreError struct {
	Msg string
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("invalid score: %s", e.Msg)
}

// DataNotFoundError marks a record referencing a chart or song this
// service does not know about. Import types that support orphaning
// route these to the orphan queue; otherwise it becomes a per-record
// error. Fingerprint, Data and Context carry everything the orphan
// queue needs to requeue and later replay the record.
type DataNotFoundError struct {
	Msg         string
	Fingerprint string
	Data        []byte
	Context     []byte

	// Orphan is the chart proposal to queue when the import type
	// supports orphaning. Nil when the record cannot seed one (a
	// missing chart on an already known song, for example).
	Orphan *domain.OrphanChart
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("data not found: %s", e.Msg)
}

// InternalError marks a referential-integrity failure (a chart whose
// parent song is missing, or the inverse). This is a bug in our data,
// not bad user input, and must be surfaced loudly.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal failure: %s", e.Msg)
}

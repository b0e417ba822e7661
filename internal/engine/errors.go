// Package engine composes chunking, embedding, namespacing and retrieval
// into the ingestion and query operations of the retrieval engine.
package engine

import (
	"fmt"
)

// Kind classifies engine failures so callers can react per class instead
// of parsing messages.
type Kind string

const (
	// KindInput marks invalid input: bad case id, bad source label, a
	// query against a case that was never ingested.
	KindInput Kind = "input"

	// KindModel marks embedding failure after the fallback was exhausted.
	KindModel Kind = "model"

	// KindIndex marks vector store read/write failure.
	KindIndex Kind = "index"

	// KindIsolation marks detected cross-namespace contamination. Never
	// silently corrected.
	KindIsolation Kind = "isolation"
)

// Error is the structured failure type for engine operations. It names
// the failing identifier (case, source, chunk) alongside the kind.
type Error struct {
	Kind   Kind
	CaseID string
	Source string
	// ChunkIndex is the failing chunk's position, -1 when not applicable.
	ChunkIndex int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error: case %s", e.Kind, e.CaseID)
	if e.Source != "" {
		msg += ", source " + e.Source
	}
	if e.ChunkIndex >= 0 {
		msg += fmt.Sprintf(", chunk %d", e.ChunkIndex)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, caseID, source string, err error) *Error {
	return &Error{Kind: kind, CaseID: caseID, Source: source, ChunkIndex: -1, Err: err}
}

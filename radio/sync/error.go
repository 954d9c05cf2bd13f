package sync

import (
	"fmt"
)

// RejectionKind classifies why an inbound gossip frame was dropped. None of
// them are fatal; each is counted and the frame discarded.
type RejectionKind string

const (
	// RejectInvalid covers decode and format failures.
	RejectInvalid RejectionKind = "invalid"
	// RejectStale covers nonce replay from a known signer.
	RejectStale RejectionKind = "stale"
	// RejectUnauthenticated covers signature failures.
	RejectUnauthenticated RejectionKind = "unauthenticated"
	// RejectUnregistered covers signers with no active, staked operator.
	RejectUnregistered RejectionKind = "unregistered"
	// RejectInconsistent covers block hash or network mismatches.
	RejectInconsistent RejectionKind = "inconsistent"
)

// RejectionError carries the kind alongside the underlying cause.
type RejectionError struct {
	Kind  RejectionKind
	Cause error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("message rejected (%s): %v", e.Kind, e.Cause)
}

// Unwrap exposes the cause for errors.Is / errors.As.
func (e *RejectionError) Unwrap() error {
	return e.Cause
}

func reject(kind RejectionKind, cause error) *RejectionError {
	return &RejectionError{Kind: kind, Cause: cause}
}

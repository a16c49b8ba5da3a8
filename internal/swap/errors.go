package swap

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady means a prerequisite for building the swap is missing.
	// Callers should treat it as "try again later", not as a failure.
	ErrNotReady = errors.New("swap not ready: missing dependencies")

	// ErrRejected is returned when the wallet owner declined to sign.
	ErrRejected = errors.New("transaction rejected")

	// ErrNoEstimate means no candidate produced a usable estimate and no
	// failure carried a reason either.
	ErrNoEstimate = errors.New("unexpected error: could not estimate gas for the swap")

	// ErrUnknownChain means no relay endpoint or router is configured for
	// the active chain.
	ErrUnknownChain = errors.New("no relay or router configured for this chain")
)

// EstimationError reports that every candidate failed estimation, carrying
// the most specific human-readable reason collected during simulation.
type EstimationError struct {
	Reason string
}

func (e *EstimationError) Error() string { return e.Reason }

// SubmissionError reports a signing or broadcast failure after a
// successful estimate.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("swap failed: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRunNotFound means the referenced allocation run does not exist.
	ErrRunNotFound = errors.New("allocation run not found")
	// ErrAlreadyAllocated means an accept was attempted on a run that is
	// already in a terminal state. Never retried automatically.
	ErrAlreadyAllocated = errors.New("allocation already finalized")
	// ErrCandidateNotRanked means the referenced candidate is not in the
	// run's exposed ranked list.
	ErrCandidateNotRanked = errors.New("candidate not in ranked list")

	// ErrTotalFetchFailure means the candidate source produced no usable
	// waitlist records at all.
	ErrTotalFetchFailure = errors.New("no candidates available")
	// ErrPredictionUnavailable means the survival estimator failed for a
	// candidate. The candidate is excluded, never scored as neutral.
	ErrPredictionUnavailable = errors.New("survival prediction unavailable")
)

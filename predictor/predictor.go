// Package predictor defines the next-item predictor contract used by the
// recommender and ships an online neural implementation of it.
package predictor

import "errors"

// Predictor learns transitions between item indices and ranks candidates.
//
// Indices live in [0, N) where N is the vocabulary size the predictor was
// built with. Implementations need not be safe for concurrent use.
type Predictor interface {
	// Fit performs exactly one online parameter update over seq, treating
	// consecutive elements as (context, target) pairs, and returns the
	// summed loss of that update.
	Fit(seq []int) (float64, error)

	// Predict returns every index in [0, N) ordered from most to least
	// likely to follow idx. The order is deterministic given the current
	// parameters. An idx outside [0, N) yields nil.
	Predict(idx int) []int
}

var (
	// ErrShortSequence is returned by Fit when seq has fewer than two elements.
	ErrShortSequence = errors.New("predictor: sequence needs at least two indices")
	// ErrIndexOutOfRange is returned by Fit for an index outside [0, N).
	ErrIndexOutOfRange = errors.New("predictor: index out of range")
	// ErrUnsupportedDevice is returned by New for any device but "cpu".
	ErrUnsupportedDevice = errors.New("predictor: unsupported compute device")
	// ErrInvalidConfig is returned by New for non-positive sizes or rates.
	ErrInvalidConfig = errors.New("predictor: invalid config")
)

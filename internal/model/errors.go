package model

import "errors"

// Error taxonomy surfaced by the engine. Callers match with errors.Is;
// implementations wrap these with context via fmt.Errorf("...: %w").
var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrRateLimited         = errors.New("rate limited")
	ErrCircuitOpen         = errors.New("circuit breaker is open")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrCalculation         = errors.New("calculation error")
	ErrNotFound            = errors.New("not found")
)

// Finer-grained parameter errors. Both also match ErrInvalidParameters.
var (
	ErrInvalidDirection  = &paramError{msg: "invalid direction"}
	ErrInvalidEntryPrice = &paramError{msg: "invalid entry price"}
)

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func (e *paramError) Is(target error) bool { return target == ErrInvalidParameters }

// ErrorKind maps err onto the taxonomy name used in logs, metrics labels and
// HTTP responses. Unknown errors map to "CalculationError".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientHistory):
		return "InsufficientHistory"
	case errors.Is(err, ErrInvalidParameters):
		return "InvalidParameters"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrCircuitOpen):
		return "CircuitOpen"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UpstreamUnavailable"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "CalculationError"
	}
}

// KindError rebuilds a sentinel from a kind name produced by ErrorKind.
// Used when a recorded failure has to be surfaced again later.
func KindError(kind string) error {
	switch kind {
	case "InsufficientHistory":
		return ErrInsufficientHistory
	case "InvalidParameters":
		return ErrInvalidParameters
	case "RateLimited":
		return ErrRateLimited
	case "CircuitOpen":
		return ErrCircuitOpen
	case "UpstreamUnavailable":
		return ErrUpstreamUnavailable
	case "NotFound":
		return ErrNotFound
	default:
		return ErrCalculation
	}
}

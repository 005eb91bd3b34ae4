package probing

import "fmt"

// ConfigurationError reports an invalid option (fold count, optimizer name,
// store backend, ...). It always surfaces before any fold starts training.
type ConfigurationError struct {
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func configErrorf(format string, args ...interface{}) ConfigurationError {
	return ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	_, ok := err.(ConfigurationError)
	return ok
}

// DataIntegrityError reports malformed input data: a triplet referencing an
// object outside the universe, or a fold with an empty triplet partition.
type DataIntegrityError struct {
	Reason string
}

func (e DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error: %s", e.Reason)
}

func dataErrorf(format string, args ...interface{}) DataIntegrityError {
	return DataIntegrityError{Reason: fmt.Sprintf(format, args...)}
}

// IsDataIntegrityError reports whether err is a DataIntegrityError.
func IsDataIntegrityError(err error) bool {
	_, ok := err.(DataIntegrityError)
	return ok
}

// DivergenceError reports a non-finite validation loss during fitting. It is
// fatal for the fold it occurred in; the fold is omitted from aggregation.
type DivergenceError struct {
	Fold  int
	Epoch int
	Loss  float64
}

func (e DivergenceError) Error() string {
	return fmt.Sprintf("non-finite validation loss %v in fold %d at epoch %d", e.Loss, e.Fold, e.Epoch)
}

// IsDivergenceError reports whether err is a DivergenceError.
func IsDivergenceError(err error) bool {
	_, ok := err.(DivergenceError)
	return ok
}

package cli

// SilentError wraps an error that has already been reported to the user
// (e.g. via a friendly message on stderr). main.go checks for this type
// and skips printing the underlying error again, while still exiting
// non-zero.
type SilentError struct {
	err error
}

// NewSilentError wraps err so callers up the stack don't print it again.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string {
	return e.err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.err
}

package web

import (
	"fmt"

	"github.com/nknaian/musicorg/internal/services"
)

// PageError is a failure on a page-rendering route. The user is sent to Fallback with Message flashed.
type PageError struct {
	Message  string
	Fallback string
	Err      error
}

func (e *PageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// pageError wraps err for display, leaving authorization failures untouched so they still redirect.
func pageError(err error, fallback, format string, args ...any) error {
	if _, ok := services.AsAuthRequired(err); ok {
		return err
	}
	msg := fmt.Sprintf(format, args...)
	return &PageError{Message: fmt.Sprintf("%s: %v", msg, err), Fallback: fallback, Err: err}
}

// exception renders err for the JSON "exception" field; nil stays null.
func exception(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

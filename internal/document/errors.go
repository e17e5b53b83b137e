package document

import "fmt"

// PathError reports a PDF path that could not be resolved to a readable file.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("PDF not found: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("PDF not found: %s", e.Path)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// DocumentError reports a PDF that could not be opened or has no usable text.
type DocumentError struct {
	Source string
	Reason string
	Err    error
}

func (e *DocumentError) Error() string {
	msg := e.Reason
	if e.Source != "" {
		msg = fmt.Sprintf("%s (%s)", e.Reason, e.Source)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Reasons reported by DocumentError.
const (
	ReasonUnreadable = "Invalid PDF: cannot be opened"
	ReasonNoPages    = "Empty PDF: no pages found"
	ReasonNoText     = "Empty PDF: no text content"
)

// Package fserrors provides the error kinds used by sharepkg and
// helpers to classify them.
package fserrors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// Kind classifies an error for reporting and exit codes
type Kind int

// Error kinds
const (
	KindUnknown     Kind = iota
	AuthError            // missing credentials, token failure, repeated expiry
	TransportError       // network, DNS, HTTP failure or non JSON body
	ProtocolError        // well formed JSON carrying an error object
	UploadError          // unknown package type or processing failed
	NotFoundError        // search found nothing where something was assumed
	ShareError           // per item sharing failure
	ValidationError      // bad arguments detected before any network call
)

var kindNames = []string{
	KindUnknown:     "error",
	AuthError:       "authentication error",
	TransportError:  "transport error",
	ProtocolError:   "portal error",
	UploadError:     "upload error",
	NotFoundError:   "not found",
	ShareError:      "sharing error",
	ValidationError: "invalid request",
}

// String turns a Kind into a string
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", k)
	}
	return kindNames[k]
}

// Error is an error with a Kind, a human readable message and an
// optional underlying cause.
//
// Details are secondary texts, e.g. the details list of a portal
// error, shown after the main message.
type Error struct {
	Kind    Kind
	Message string
	Code    int // portal error code if known
	Details []string
	Err     error
}

// Error satisfies the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	if len(e.Details) > 0 {
		b.WriteString(". Details: ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause returns the underlying error for github.com/pkg/errors users
func (e *Error) Cause() error {
	return e.Err
}

// New makes a new error of kind with the message given
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf makes a new error of kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with kind and message.  If err is nil it returns
// nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the outermost classified error in the
// chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is returns true if any error in the chain has the kind given
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Code returns the portal error code of the first classified error
// carrying one, or 0.
func Code(err error) int {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return 0
		}
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return 0
}

// retriableErrors is a list of low level errors which can be retried,
// extended per platform
var retriableErrors = []error{
	io.EOF,
	io.ErrUnexpectedEOF,
}

// ShouldRetry looks at an error and tries to work out if retrying the
// operation that caused it would be a good idea.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	for _, retriableErr := range retriableErrors {
		if errors.Is(err, retriableErr) {
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Error(), "use of closed network connection") {
		return true
	}
	return false
}

// ContextError checks to see if ctx is in error.
//
// If it is in error then it overwrites *perr with the context error
// if *perr was nil and returns true.
//
// Otherwise it returns false.
func ContextError(ctx context.Context, perr *error) bool {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if *perr == nil {
			*perr = ctxErr
		}
		return true
	}
	return false
}

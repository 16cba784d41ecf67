package finn

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/danderson/finn/fragments"
)

// Status is an RM status code, as returned by every FINN operation.
//
// Status implements error, so that callers can test for specific
// failures with [errors.Is].
type Status uint32

const (
	StatusOK                   Status = 0x00000000
	StatusBufferTooSmall       Status = 0x00000002
	StatusInvalidArgument      Status = 0x0000001f
	StatusInvalidPointer       Status = 0x0000003d
	StatusLibRMVersionMismatch Status = 0x0000004c
	StatusNoMemory             Status = 0x00000051
	StatusNotSupported         Status = 0x00000056
	StatusOutOfRange           Status = 0x0000005b
)

var statusNames = map[Status]string{
	StatusOK:                   "NV_OK",
	StatusBufferTooSmall:       "NV_ERR_BUFFER_TOO_SMALL",
	StatusInvalidArgument:      "NV_ERR_INVALID_ARGUMENT",
	StatusInvalidPointer:       "NV_ERR_INVALID_POINTER",
	StatusLibRMVersionMismatch: "NV_ERR_LIB_RM_VERSION_MISMATCH",
	StatusNoMemory:             "NV_ERR_NO_MEMORY",
	StatusNotSupported:         "NV_ERR_NOT_SUPPORTED",
	StatusOutOfRange:           "NV_ERR_OUT_OF_RANGE",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("NV_STATUS(0x%08x)", uint32(s))
}

func (s Status) Error() string {
	return s.String()
}

// StatusOf returns the RM status code carried by err.
//
// A nil error is [StatusOK]. Errors that do not carry a status, such
// as I/O errors from a transport, report [StatusInvalidArgument].
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusInvalidArgument
}

// Error is the error returned by failed serialization and
// deserialization operations.
type Error struct {
	// Status is the RM status code for the failure.
	Status Status
	// Type is the name of the parameter block being processed, if
	// known.
	Type string
	// Field is the name of the struct field being processed, if
	// known.
	Field string
	// Reason is an explanation of what went wrong. It may be nil.
	Reason error
}

func (e *Error) Error() string {
	var loc string
	switch {
	case e.Type != "" && e.Field != "":
		loc = e.Type + "." + e.Field + ": "
	case e.Type != "":
		loc = e.Type + ": "
	}
	if e.Reason == nil {
		return fmt.Sprintf("finn: %s%s", loc, e.Status)
	}
	return fmt.Sprintf("finn: %s%s: %s", loc, e.Status, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Reason == nil {
		return []error{e.Status}
	}
	return []error{e.Status, e.Reason}
}

func statusErr(s Status, reason string, args ...any) error {
	return &Error{
		Status: s,
		Reason: fmt.Errorf(reason, args...),
	}
}

// withField annotates err with the struct type and field being
// processed, unless a more specific location is already attached.
func withField(err error, typ reflect.Type, field string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Type == "" {
			fe.Type = typ.Name()
			fe.Field = field
		}
		return err
	}
	return &Error{
		Status: statusFor(err),
		Type:   typ.Name(),
		Field:  field,
		Reason: err,
	}
}

// TypeError is the error returned when a Go type cannot be
// represented in the FINN wire format.
type TypeError struct {
	// Type is the name of the type that caused the error.
	Type string
	// Reason is an explanation of why the type isn't representable by
	// FINN.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("finn cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(t reflect.Type, reason string, args ...any) error {
	ts := ""
	if t != nil {
		ts = t.String()
	}
	return TypeError{ts, fmt.Errorf(reason, args...)}
}

// statusFor maps errors from the wire primitives to RM status codes.
func statusFor(err error) Status {
	var s Status
	switch {
	case errors.As(err, &s):
		return s
	case errors.Is(err, io.ErrUnexpectedEOF):
		return StatusBufferTooSmall
	case errors.Is(err, fragments.ErrBadPresence):
		return StatusInvalidArgument
	default:
		return StatusInvalidArgument
	}
}

package lectern

import (
	"errors"
	"fmt"
)

var (
	ErrNotBound           = errors.New("not bound")
	ErrCircularDependency = errors.New("circular dependency")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateKey       = errors.New("an entity with the same identifier already exists")
	ErrNotFound           = errors.New("the requested entity could not be found")
	ErrConnector          = errors.New("an error occurred in the store connector")
	ErrWrongType          = errors.New("resolved value has the wrong type")
	ErrBadArgument        = errors.New("one or more of the arguments is invalid")
	ErrBodyUnmarshal      = errors.New("malformed data in request")
	ErrThrottled          = errors.New("too many invocations; try again later")
	ErrNextCalledTwice    = errors.New("next was called more than once")
)

// Error is a typed error returned by functions in lectern as their error
// value. It contains both a message explaining what happened as well as one or
// more error values it considers to be its causes. Error is compatible with the
// use of errors.Is() - calling errors.Is on some Error value err along with any
// value of error it holds as one of its causes will return true. This allows
// for easy examination and failure condition checking without needing to
// resort to manual typecasting.
//
// If Error has at least one cause defined, the result of calling Error.Error()
// will be its primary message with the result of calling Error() on its first
// cause appended to it.
//
// Error should not be used directly; call NewError to create one.
type Error struct {
	msg   string
	cause []error
}

// Error returns the message defined for the Error. If a message was defined for
// it when created, that message is returned, concatenated with the result of
// calling Error() on its first cause if one is defined. If no message or an
// empty message was defined for it when created, but there is at least one
// cause defined for it, the result of calling Error() on the first cause is
// returned. If no message is defined and no causes are defined, returns the
// empty string.
func (e Error) Error() string {
	if e.msg == "" && e.cause != nil {
		return e.cause[0].Error()
	}

	if e.cause != nil {
		return e.msg + ": " + e.cause[0].Error()
	}

	return e.msg
}

// Unwrap returns the causes of Error. The return value will be nil if no causes
// were defined for it.
func (e Error) Unwrap() []error {
	if len(e.cause) > 0 {
		return e.cause
	}
	return nil
}

// Is returns whether Error either Is itself the given target error, or one of
// its causes is.
//
// This function is for interaction with the errors API.
func (e Error) Is(target error) bool {
	// is the target error itself?
	if errTarget, ok := target.(Error); ok {
		if e.msg == errTarget.msg && len(e.cause) == len(errTarget.cause) {
			allCausesEqual := true
			for i := range e.cause {
				if e.cause[i] != errTarget.cause[i] {
					allCausesEqual = false
					break
				}
			}
			if allCausesEqual {
				return true
			}
		}
	}

	for i := range e.cause {
		if sErr, ok := e.cause[i].(Error); ok {
			if sErr.Is(target) {
				return true
			}
		} else if errors.Is(e.cause[i], target) {
			return true
		}
	}
	return false
}

// NewError creates a new Error with the given message, along with any errors it
// should wrap as its causes. Providing cause errors is not required, but will
// cause it to return true when it is checked against that error via a call to
// errors.Is.
func NewError(msg string, causes ...error) Error {
	err := Error{msg: msg}
	if len(causes) > 0 {
		err.cause = make([]error, len(causes))
		copy(err.cause, causes)
	}
	return err
}

// WrapConnectorError wraps an error that came out of a store connector so that
// it is usable by the rest of lectern. If the error already reports one of the
// store conditions callers are expected to check for (ErrDuplicateKey,
// ErrNotFound, or ErrConnector), it is returned with only the message added.
// Otherwise, ErrConnector is added as a cause so that errors.Is(err,
// ErrConnector) returns true.
//
// msg, if provided, is used to create the msg of the error by calling
// fmt.Sprint.
func WrapConnectorError(err error, msg ...any) error {
	if err == nil {
		return nil
	}

	var errMsg string
	if len(msg) > 0 {
		errMsg = fmt.Sprint(msg...)
	}

	if errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConnector) {
		if errMsg == "" {
			return err
		}
		return Error{msg: errMsg, cause: []error{err}}
	}

	return Error{
		msg:   errMsg,
		cause: []error{err, ErrConnector},
	}
}

// Package errors provides cheap error wrapping for hot paths: the
// message is concatenated lazily in Error, never formatted on the
// happy path.
package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = (*wrappedError)(nil)
)

func New(text string) error {
	return errors.New(text)
}

func Wrap(err error, text string) error {
	if err == nil {
		return nil
	}

	if len(text) == 0 {
		return err
	}

	return &wrappedError{
		err: err,
		msg: text,
	}
}

// Wrapf is Wrap with a formatted message. Use only off the hot path;
// formatting happens eagerly.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return &wrappedError{
		err: err,
		msg: fmt.Sprintf(format, args...),
	}
}

type wrappedError struct {
	err error
	msg string
}

const sep = ", err: "

func (err wrappedError) Error() string {
	if err.err == nil {
		return err.msg
	}

	return err.msg + sep + err.err.Error()
}

func (err wrappedError) Unwrap() error {
	if err.err == nil {
		return errors.New(err.msg)
	}

	return err.err
}

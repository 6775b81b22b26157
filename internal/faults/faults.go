package faults

import "errors"

type Category string

const (
	CategoryProvider        Category = "provider"
	CategoryMissingResource Category = "missing_resource"
	CategoryMalformedState  Category = "malformed_state"
	CategoryInvalidInput    Category = "invalid_input"
	CategoryInternal        Category = "internal"
)

type classifiedError struct {
	category  Category
	code      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, category Category, code string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		retryable: retryable,
		cause:     cause,
	}
}

func New(category Category, code, message string) error {
	return Wrap(errors.New(message), category, code, false)
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}

func Is(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}

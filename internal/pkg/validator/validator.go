// Package validator wraps go-playground/validator for struct tag validation
// and flattens its field errors into a single joined error.
package validator

import (
	"errors"
	"fmt"
	"sync"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed is the first error of every chain returned for a value
// that breaks one of its validation tags.
var ErrValidationFailed = errors.New("struct validation failed")

// fieldErrFormat describes a single broken rule, e.g.
// "'Amount': value '0' does not meet the requirements for the 'gt' validation".
const fieldErrFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

var instance = sync.OnceValue(func() *gvalidator.Validate {
	return gvalidator.New(gvalidator.WithRequiredStructEnabled())
})

// formatError joins ErrValidationFailed with one message per failed field.
// Errors that are not field validation errors are returned as they are.
func formatError(err error) error {
	var fieldErrs gvalidator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs)+1)
	errs = append(errs, ErrValidationFailed)
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf(fieldErrFormat, fe.Field(), fe.Value(), fe.Tag()))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` struct tags. The returned error
// matches ErrValidationFailed when a rule is broken; other errors mean v
// could not be validated at all (for example, it is not a struct).
func Validate(v any) error {
	if err := instance().Struct(v); err != nil {
		return formatError(err)
	}
	return nil
}

// ValidateEach validates items in order and stops at the first invalid one.
// The error names the item's index.
func ValidateEach[T any](items []T) error {
	for i := range items {
		if err := Validate(items[i]); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation marks malformed input on a write path. No state was touched.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized marks a shared-secret mismatch on an internal surface.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRecordMissingLocally means the contract knows a market the cache does not.
	ErrRecordMissingLocally = errors.New("prediction registered on-chain but missing from cache")
	// ErrUnknownTaskType is returned for reserved or malformed task types.
	ErrUnknownTaskType = errors.New("unknown task type")
)

// validationError turns validator output into one ErrValidation with readable field messages.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func describeField(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "eth_addr":
		return field + " must be a 20-byte hex address"
	case "len", "startswith", "hexadecimal":
		if field == "txHash" {
			return field + " must be a 32-byte hex hash"
		}
		return field + " has an invalid format"
	case "tasktype":
		return field + " must be 1-64 letters, digits, '_' or '-'"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

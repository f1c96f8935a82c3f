package model

import "strings"

// Machine-readable error codes carried in the "error" field of failed responses.
const (
	CodeOwnerRequired     = "owner_required"
	CodeKeyRequired       = "key_required"
	CodeValueRequired     = "value_required"
	CodeValueMustBeString = "value_must_be_string"
	CodeNotFound          = "not_found"
	CodePayloadTooLarge   = "payload_too_large"
	CodeInternal          = "internal_error"
	CodeBusy              = "busy"
)

// InputError reports a client input failure identified by one of the Code* constants.
// Transport layers map it to 400.
type InputError struct {
	Code string
}

func (e *InputError) Error() string {
	return "invalid input: " + e.Code
}

// ValidateOwner trims owner and rejects it when blank.
func ValidateOwner(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", &InputError{Code: CodeOwnerRequired}
	}
	return owner, nil
}

// ValidateRef trims owner and key and rejects either when blank.
// Owner is checked first so a request missing both reports owner_required.
func ValidateRef(owner, key string) (string, string, error) {
	owner, err := ValidateOwner(owner)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", &InputError{Code: CodeKeyRequired}
	}
	return owner, key, nil
}

package emergency

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidUrgency  = "INVALID_URGENCY"
	textCodeNoProfile       = "NO_PROFILE"
	textCodeProfileExists   = "PROFILE_EXISTS"
	textCodeProfileNotFound = "PROFILE_NOT_FOUND"
	textCodeNotPrivileged   = "NOT_PRIVILEGED"
	textCodeNotAuthorized   = "NOT_AUTHORIZED"
	textCodeAlreadyApproved = "ALREADY_APPROVED"
	textCodeRequestNotFound = "REQUEST_NOT_FOUND"
	textCodeNoActiveRecord  = "NO_ACTIVE_RECORD"
	textCodeEmptyField      = "EMPTY_FIELD"
)

func validationError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryValidation).WithTextCode(textCode)
}

func authzError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryAuthz).WithTextCode(textCode)
}

func stateError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryConflict).WithTextCode(textCode)
}

func notFoundError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).WithTextCode(textCode)
}

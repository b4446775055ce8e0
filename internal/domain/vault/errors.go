package vault

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeUnsupportedType   = "UNSUPPORTED_TYPE"
	textCodeEmptyField        = "EMPTY_FIELD"
	textCodeInvalidLevel      = "INVALID_LEVEL"
	textCodeNotOwner          = "NOT_OWNER"
	textCodeNotPrivileged     = "NOT_PRIVILEGED"
	textCodeCannotRevokeOwner = "CANNOT_REVOKE_OWNER"
	textCodeOwnerGrant        = "OWNER_GRANT_IMPLICIT"
	textCodeRecordInactive    = "RECORD_INACTIVE"
	textCodeRecordNotFound    = "RECORD_NOT_FOUND"
	textCodeGrantNotFound     = "GRANT_NOT_FOUND"
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

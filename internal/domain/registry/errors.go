package registry

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidRole  = "INVALID_ROLE"
	textCodeNotPermitted = "NOT_PERMITTED"
	textCodeOwnerSet     = "OWNER_ALREADY_SET"
	textCodeOwnerRole    = "OWNER_ROLE_IMMUTABLE"
)

func validationError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryValidation).WithTextCode(textCode)
}

func authzError(message string) error {
	return goerrors.New(message, goerrors.CategoryAuthz).WithTextCode(textCodeNotPermitted)
}

func stateError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryConflict).WithTextCode(textCode)
}

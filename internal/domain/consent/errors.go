package consent

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeEmptyDataTypes       = "EMPTY_DATA_TYPES"
	textCodeInvalidProvider      = "INVALID_PROVIDER"
	textCodeZeroDuration         = "ZERO_DURATION"
	textCodeNotPatient           = "NOT_PATIENT"
	textCodeNotProvider          = "NOT_PROVIDER"
	textCodeAlreadyActive        = "ALREADY_ACTIVE"
	textCodeAlreadyRevoked       = "ALREADY_REVOKED"
	textCodeNotActive            = "NOT_ACTIVE"
	textCodeExpired              = "EXPIRED"
	textCodeNotExpired           = "NOT_EXPIRED"
	textCodeRenewalDisabled      = "RENEWAL_DISABLED"
	textCodeEmptyReason          = "EMPTY_REASON"
	textCodeDataTypeNotPermitted = "DATA_TYPE_NOT_PERMITTED"
	textCodeConsentNotFound      = "CONSENT_NOT_FOUND"
	textCodeSubGrantNotFound     = "SUB_GRANT_NOT_FOUND"
	textCodeInsufficientPayment  = "INSUFFICIENT_PAYMENT"
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

func paymentError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryOperation).WithTextCode(textCode)
}

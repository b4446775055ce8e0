package research

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeEmptyDataTypes       = "EMPTY_DATA_TYPES"
	textCodeZeroCompensation     = "ZERO_COMPENSATION"
	textCodeZeroCapacity         = "ZERO_CAPACITY"
	textCodeZeroDuration         = "ZERO_DURATION"
	textCodeNotInvestigator      = "NOT_INVESTIGATOR"
	textCodeStudyNotActive       = "STUDY_NOT_ACTIVE"
	textCodeStudyFull            = "STUDY_FULL"
	textCodeAlreadyParticipant   = "ALREADY_PARTICIPANT"
	textCodeNotParticipant       = "NOT_PARTICIPANT"
	textCodeDataTypeNotPermitted = "DATA_TYPE_NOT_PERMITTED"
	textCodeNoConsent            = "NO_CONSENT"
	textCodeOutOfWindow          = "OUT_OF_WINDOW"
	textCodeAlreadyValidated     = "ALREADY_VALIDATED"
	textCodeNotYetEnded          = "NOT_YET_ENDED"
	textCodeAlreadyPaused        = "ALREADY_PAUSED"
	textCodeNotPaused            = "NOT_PAUSED"
	textCodeCompleted            = "COMPLETED"
	textCodeEmptyReason          = "EMPTY_REASON"
	textCodeStudyNotFound        = "STUDY_NOT_FOUND"
	textCodeContributionNotFound = "CONTRIBUTION_NOT_FOUND"
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

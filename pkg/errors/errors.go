package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeForbidden         Code = "FORBIDDEN"
	CodeDuplicateEmail    Code = "DUPLICATE_EMAIL"
	CodeAccountNotFound   Code = "ACCOUNT_NOT_FOUND"
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeRecordNotFound    Code = "RECORD_NOT_FOUND"
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	// CodeLocationUnavailable is a provider fault (no permission, no
	// hardware); CodeLocationInvalid is a policy rejection for an
	// out-of-zone sample. They are distinct on purpose.
	CodeLocationUnavailable       Code = "LOCATION_UNAVAILABLE"
	CodeLocationInvalid           Code = "LOCATION_INVALID"
	CodeClassificationUnavailable Code = "CLASSIFICATION_UNAVAILABLE"
	CodeSubmitFailed              Code = "SUBMIT_FAILED"
	CodeInternal                  Code = "INTERNAL_ERROR"
)

type Metadata struct {
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeForbidden: {
		Retryable:      false,
		PublicMessage:  "access denied",
		DetailsAllowed: false,
	},
	CodeDuplicateEmail: {
		Retryable:      false,
		PublicMessage:  "email already registered",
		DetailsAllowed: false,
	},
	CodeAccountNotFound: {
		Retryable:      false,
		PublicMessage:  "account not found",
		DetailsAllowed: false,
	},
	CodeInvalidCredential: {
		Retryable:      false,
		PublicMessage:  "invalid credentials",
		DetailsAllowed: false,
	},
	CodeRecordNotFound: {
		Retryable:      false,
		PublicMessage:  "record not found",
		DetailsAllowed: false,
	},
	CodeUnsupportedFormat: {
		Retryable:      false,
		PublicMessage:  "unsupported image format",
		DetailsAllowed: true,
	},
	CodeLocationUnavailable: {
		Retryable:      false,
		PublicMessage:  "device location unavailable",
		DetailsAllowed: true,
	},
	CodeLocationInvalid: {
		Retryable:      true,
		PublicMessage:  "outside the patrol zone",
		DetailsAllowed: true,
	},
	CodeClassificationUnavailable: {
		Retryable:      true,
		PublicMessage:  "image analysis unavailable",
		DetailsAllowed: true,
	},
	CodeSubmitFailed: {
		Retryable:      true,
		PublicMessage:  "failed to store patrol log",
		DetailsAllowed: true,
	},
	CodeInternal: {
		Retryable:      true,
		PublicMessage:  "internal error",
		DetailsAllowed: false,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given domain code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether the failure has a defined retry path.
func Retryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.Code()).Retryable
}

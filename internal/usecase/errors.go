package usecase

import (
	"fmt"

	"github.com/example/face-verify/internal/logging"
)

// Error kinds, used as the "kind" log field.
const (
	KindMissingInput = "missing_input"
	KindDecode       = "decode"
	KindVerification = "verification"
)

// MissingFieldError reports an absent image upload field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required file field %q", e.Field)
}

// DecodeError reports upload bytes that are not a decodable image.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// VerificationError reports a failure inside the face-verification capability.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string {
	return "face verification failed: " + logging.PublicMessage(e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

package booking

import "fmt"

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Kind classifies an expected rejection of a booking operation.
type Kind string

const (
	KindNotFound                      Kind = "NOT_FOUND"
	KindUnauthorized                  Kind = "UNAUTHORIZED"
	KindCapacityExceeded              Kind = "CAPACITY_EXCEEDED"
	KindNoDisplaceableCandidate       Kind = "NO_DISPLACEABLE_CANDIDATE"
	KindBlockedByHigherPriorityUnpaid Kind = "BLOCKED_BY_HIGHER_PRIORITY_UNPAID"
	KindInvalidOtp                    Kind = "INVALID_OTP"
	KindAlreadySettled                Kind = "ALREADY_SETTLED"
	KindInvalidTransition             Kind = "INVALID_TRANSITION"
	KindIdempotencyConflict           Kind = "IDEMPOTENCY_CONFLICT"
)

// RejectionError is a domain rejection returned to the caller as-is.
type RejectionError struct {
	Kind    Kind
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func reject(kind Kind, msg string) error {
	return &RejectionError{Kind: kind, Message: msg}
}

var (
	errAppointmentNotFound = reject(KindNotFound, "Appointment not found")
	errProviderNotFound    = reject(KindNotFound, "Provider not found")
	errNotAuthorized       = reject(KindUnauthorized, "User not authorized")
	errFullyBooked         = reject(KindCapacityExceeded, "This provider is fully booked for today.")
	errFullyBookedTopTier  = reject(KindNoDisplaceableCandidate, "This provider is fully booked with high priority appointments.")
	errInvalidOtp          = reject(KindInvalidOtp, "Invalid OTP")
	errAlreadyPaid         = reject(KindAlreadySettled, "Cannot cancel a booking that has already been paid")
	errIdempotencyConflict = reject(KindIdempotencyConflict, "Idempotency key was already used for a different booking")
)

func blockedError(verb string) error {
	return reject(KindBlockedByHigherPriorityUnpaid,
		fmt.Sprintf("Cannot %s this booking while a higher priority booking is awaiting payment", verb))
}

func transitionError(from, verb string) error {
	return reject(KindInvalidTransition, fmt.Sprintf("Cannot %s a booking that is %s", verb, from))
}

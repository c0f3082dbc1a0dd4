// Package apperr holds the closed set of outcomes returned by settlement,
// cancellation and session operations. Transport layers map Code to their own
// representation; Reason is a stable machine-readable detail.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotFound       Code = "NOT_FOUND"
	CodeSessionPending Code = "SESSION_PENDING"
	CodeSessionEnded   Code = "SESSION_ENDED"
	CodeBadRequest     Code = "BAD_REQUEST"
	CodeConflict       Code = "CONFLICT"
	CodeInternal       Code = "INTERNAL"
)

type Reason string

const (
	ReasonEmptyOrder      Reason = "EMPTY_ORDER"
	ReasonInvalidLine     Reason = "INVALID_LINE"
	ReasonItemNotFound    Reason = "ITEM_NOT_FOUND"
	ReasonItemUnavailable Reason = "ITEM_UNAVAILABLE"
	ReasonModifierInvalid Reason = "MODIFIER_INVALID"
	ReasonInvalidType     Reason = "INVALID_ORDER_TYPE"

	ReasonCouponNotFound      Reason = "COUPON_NOT_FOUND"
	ReasonCouponInactive      Reason = "COUPON_INACTIVE"
	ReasonCouponNotStarted    Reason = "COUPON_NOT_STARTED"
	ReasonCouponExpired       Reason = "COUPON_EXPIRED"
	ReasonCouponUsageLimit    Reason = "COUPON_USAGE_LIMIT"
	ReasonCouponNotAssigned   Reason = "COUPON_NOT_ASSIGNED"
	ReasonCouponCustomerLimit Reason = "COUPON_CUSTOMER_LIMIT"
	ReasonCouponMinOrder      Reason = "COUPON_MIN_ORDER"
	ReasonCouponCodeTaken     Reason = "COUPON_CODE_TAKEN"
	ReasonInvalidCoupon       Reason = "INVALID_COUPON"

	ReasonRedemptionNotFound       Reason = "REDEMPTION_NOT_FOUND"
	ReasonRedemptionAlreadyUsed    Reason = "REDEMPTION_ALREADY_USED"
	ReasonRedemptionWrongEnrolment Reason = "REDEMPTION_WRONG_ENROLLMENT"
	ReasonCustomerRequired         Reason = "CUSTOMER_REQUIRED"
	ReasonInsufficientPoints       Reason = "INSUFFICIENT_POINTS"
	ReasonRewardInactive           Reason = "REWARD_INACTIVE"
	ReasonRewardNotFound           Reason = "REWARD_NOT_FOUND"
	ReasonEnrollmentNotFound       Reason = "ENROLLMENT_NOT_FOUND"

	ReasonOrderNotFound        Reason = "ORDER_NOT_FOUND"
	ReasonBranchNotFound       Reason = "BRANCH_NOT_FOUND"
	ReasonOrderAlreadyCanceled Reason = "ORDER_ALREADY_CANCELLED"
	ReasonOrderNotCancellable  Reason = "ORDER_NOT_CANCELLABLE"
	ReasonItemsInProgress      Reason = "ORDER_ITEMS_IN_PROGRESS"
	ReasonInvalidTransition    Reason = "INVALID_TRANSITION"

	ReasonSessionNotFound      Reason = "SESSION_NOT_FOUND"
	ReasonSessionPending       Reason = "SESSION_PENDING"
	ReasonSessionEnded         Reason = "SESSION_ENDED"
	ReasonSessionPendingExists Reason = "SESSION_PENDING_EXISTS"
	ReasonRegistrationBusy     Reason = "REGISTRATION_IN_PROGRESS"
	ReasonTableNotFound        Reason = "TABLE_NOT_FOUND"
	ReasonInvalidTableCode     Reason = "INVALID_TABLE_CODE"

	ReasonInvariantViolation Reason = "INVARIANT_VIOLATION"
)

// Error is a classified failure. It wraps an optional cause.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code and Reason so callers can compare against the helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, reason Reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

func Wrap(code Code, reason Reason, message string, err error) *Error {
	return &Error{Code: code, Reason: reason, Message: message, Err: err}
}

func NotFound(reason Reason, message string) *Error {
	return New(CodeNotFound, reason, message)
}

func BadRequest(reason Reason, message string) *Error {
	return New(CodeBadRequest, reason, message)
}

func Conflict(reason Reason, message string) *Error {
	return New(CodeConflict, reason, message)
}

// Invariant marks a defect detected at runtime; the enclosing transaction must roll back.
func Invariant(message string) *Error {
	return New(CodeInternal, ReasonInvariantViolation, message)
}

// CodeOf classifies any error. Unclassified errors are INTERNAL.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ReasonOf returns the reason of a classified error, or "" when unclassified.
func ReasonOf(err error) Reason {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeSessionPending:
		return http.StatusAccepted
	case CodeSessionEnded:
		return http.StatusGone
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

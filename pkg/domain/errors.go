package domain

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidContent = NewErr("INVALID_CONTENT", "content empty or too large", http.StatusBadRequest)
	ErrInvalidTTL     = NewErr("INVALID_TTL", "ttl outside allowed range", http.StatusBadRequest)
	ErrRateLimited    = NewErr("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrDuplicateToken = NewErr("DUPLICATE_TOKEN", "token already exists", http.StatusInternalServerError)
	ErrClockSkew      = NewErr("CLOCK_SKEW", "clock moved backwards", http.StatusInternalServerError)
	ErrMalformedToken = NewErr("MALFORMED_TOKEN", "malformed token", http.StatusNotFound)
	// ErrNotFound covers unknown and expired tokens alike. The two cases
	// must stay indistinguishable to callers.
	ErrNotFound       = NewErr("NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrInvalidRequest = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrInternalServer = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// RetryAfterError decorates ErrRateLimited with the duration the client
// must wait before the next create attempt. Matches errors.Is(err,
// ErrRateLimited) and is reachable via errors.As.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RetryAfterError) Unwrap() error { return ErrRateLimited }

func NewRateLimited(retryAfter time.Duration) error {
	return &RetryAfterError{RetryAfter: retryAfter}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}

type ErrDetail struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

func ToResp(err error) ErrResp {
	if e, ok := err.(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	var re *RetryAfterError
	if errors.As(err, &re) {
		return ErrResp{Error: ErrDetail{Code: ErrRateLimited.Code, Msg: ErrRateLimited.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}

func Status(err error) int {
	if e, ok := err.(*Err); ok {
		return e.Status
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	var re *RetryAfterError
	if errors.As(err, &re) {
		return ErrRateLimited.Status
	}
	return http.StatusInternalServerError
}

package http

import (
	"fmt"
	"net/http"
)

// AppError is an error the API shows to clients as is.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// Throttled is returned to clients over their request budget.
func Throttled() *AppError {
	return NewAppError(http.StatusTooManyRequests, "ERR_RATE_LIMITED", "too many requests")
}

package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope wraps every JSON body served by the API. Status mirrors the HTTP
// status code.
type Envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Page is the data of a list endpoint.
type Page struct {
	Rows  interface{} `json:"rows"`
	Total int         `json:"total"`
}

func write(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// OK writes data with 200.
func OK(c echo.Context, data interface{}) error { return write(c, http.StatusOK, data) }

// List writes rows and their count with 200.
func List[T any](c echo.Context, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	return write(c, http.StatusOK, Page{Rows: rows, Total: len(rows)})
}

// Invalid writes field problems with 400.
func Invalid(c echo.Context, problems []FieldProblem) error {
	return write(c, http.StatusBadRequest, problems)
}

// Fail writes an *AppError with its own status. Any other error becomes a
// bare 500 so internals never leak.
func Fail(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return write(c, appErr.Status, []*AppError{appErr})
	}
	return write(c, http.StatusInternalServerError, nil)
}

package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var (
	validate = validator.New()
	binder   = &echo.DefaultBinder{}
)

// FieldProblem describes one rejected query parameter.
type FieldProblem struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Limit   string `json:"limit,omitempty"`
}

// BindQuery binds query parameters into req, fills unset fields from their
// `default` tags and validates the result.
func BindQuery(c echo.Context, req interface{}) []FieldProblem {
	if err := binder.BindQueryParams(c, req); err != nil {
		return problems(err)
	}
	if err := defaults.Set(req); err != nil {
		return problems(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return problems(err)
	}
	return nil
}

func problems(err error) []FieldProblem {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldProblem, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldProblem{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: describe(fe),
				Limit:   fe.Param(),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []FieldProblem{{Code: "ERR_BIND", Message: fmt.Sprint(he.Message)}}
	}
	return []FieldProblem{{Code: "ERR_INVALID", Message: err.Error()}}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

package historyapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/go-playground/validator/v10"
)

// RequestValidator plugs go-playground/validator into echo. Field names in errors follow
// the query or json tag the client used.
type RequestValidator struct {
	validator *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "json", "param"} {
			if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return &RequestValidator{validator: v}
}

func (v *RequestValidator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			fe := ves[0]
			return &notification.ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

package notification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var ErrMalformedEvent = errors.New("malformed notification event")

// ValidationError is a field-level failure found at the parse boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseEvent decodes and validates an inbound message. Every failure wraps ErrMalformedEvent.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("%w: decode: %v", ErrMalformedEvent, err)
	}
	if err := ValidateEvent(ev); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return ev, nil
}

func ValidateEvent(ev Event) error {
	if err := validate.Struct(ev); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 {
			fe := ves[0]
			return &ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return err
	}
	if !ev.EventType.Known() {
		return &ValidationError{Field: "Event.EventType", Message: fmt.Sprintf("unknown event type %q", ev.EventType)}
	}
	return nil
}

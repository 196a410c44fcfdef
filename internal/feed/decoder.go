// Package feed turns change-feed messages into engine invocations.
package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/models"
)

// Decoder parses and validates LogEvent payloads.
type Decoder struct {
	validate  *validator.Validate
	maxFuture time.Duration
	now       func() time.Time
}

func NewDecoder() *Decoder {
	v := validator.New()

	// Identifiers end up in SQL parameters, Redis keys and alert text.
	v.RegisterValidation("printable", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), func(r rune) bool {
			return !unicode.IsPrint(r)
		}) < 0
	})

	return &Decoder{validate: v, maxFuture: 5 * time.Minute, now: time.Now}
}

// Decode returns messaging.ErrPermanent-wrapped errors for payloads that will
// never decode, so they are not redelivered.
func (d *Decoder) Decode(data []byte) (*models.LogEvent, error) {
	var ev models.LogEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: decode event: %w", messaging.ErrPermanent, err)
	}
	if err := d.Validate(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (d *Decoder) Validate(ev *models.LogEvent) error {
	if err := d.validate.Struct(ev); err != nil {
		return fmt.Errorf("%w: validation failed: %w", messaging.ErrPermanent, err)
	}
	for _, s := range []string{ev.ActorID, ev.Action} {
		if err := d.validate.Var(s, "printable"); err != nil {
			return fmt.Errorf("%w: non-printable identifier", messaging.ErrPermanent)
		}
	}
	if ev.CreatedAt.After(d.now().Add(d.maxFuture)) {
		return fmt.Errorf("%w: createdAt %s is in the future", messaging.ErrPermanent, ev.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

package job

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings tune one run. Zero values are filled from the engine defaults.
type Settings struct {
	APIKey        string   `json:"api_key,omitempty"`
	SearchTerms   []string `json:"search_terms" validate:"required,min=1,dive,required"`
	Language      string   `json:"language" validate:"omitempty,min=2,max=10"`
	Region        string   `json:"region" validate:"omitempty,len=2"`
	DefaultRadius float64  `json:"default_radius" validate:"gte=100,lte=50000"`
	// RequestDelay is in seconds.
	RequestDelay float64 `json:"request_delay" validate:"gte=0.1,lte=10"`
	MaxRetries   int     `json:"max_retries" validate:"gte=1,lte=10"`
	BatchSize    int     `json:"batch_size" validate:"gte=1,lte=100"`
	GridWidthKM  float64 `json:"grid_width_km" validate:"gte=1,lte=50"`
	GridHeightKM float64 `json:"grid_height_km" validate:"gte=1,lte=50"`
	GridRadiusM  float64 `json:"grid_radius_meters" validate:"gte=100,lte=5000"`
	// EnrichEmails is nil when the request leaves it to the engine default.
	EnrichEmails *bool `json:"enrich_emails,omitempty"`
}

func (s Settings) Enrich() bool {
	return s.EnrichEmails != nil && *s.EnrichEmails
}

func (s Settings) Delay() time.Duration {
	return time.Duration(s.RequestDelay * float64(time.Second))
}

// WithDefaults fills every zero field of s from d.
func (s Settings) WithDefaults(d Settings) Settings {
	if len(s.SearchTerms) == 0 {
		s.SearchTerms = append([]string(nil), d.SearchTerms...)
	}
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.Region == "" {
		s.Region = d.Region
	}
	if s.DefaultRadius == 0 {
		s.DefaultRadius = d.DefaultRadius
	}
	if s.RequestDelay == 0 {
		s.RequestDelay = d.RequestDelay
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.BatchSize == 0 {
		s.BatchSize = d.BatchSize
	}
	if s.GridWidthKM == 0 {
		s.GridWidthKM = d.GridWidthKM
	}
	if s.GridHeightKM == 0 {
		s.GridHeightKM = d.GridHeightKM
	}
	if s.GridRadiusM == 0 {
		s.GridRadiusM = d.GridRadiusM
	}
	if s.EnrichEmails == nil && d.EnrichEmails != nil {
		v := *d.EnrichEmails
		s.EnrichEmails = &v
	}
	return s
}

// Redacted hides the api key for logs and history.
func (s Settings) Redacted() Settings {
	if s.APIKey != "" {
		s.APIKey = "***"
	}
	return s
}

var validate = validator.New()

// Validate returns an error wrapping ErrInvalidSettings listing every bad field.
func (s Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", name, fe.Tag())
	}
}

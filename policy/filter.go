package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound      = errors.New("policy: not found")
	ErrInvalidFilter = errors.New("policy: invalid filter")
	ErrInvalidStatus = errors.New("policy: invalid status")
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 500
)

var validate = validator.New()

// Filter is the request-level query shared by every analytics entry point.
// Dates accept YYYY-MM-DD or RFC3339; carrier is a comma-separated list.
type Filter struct {
	NPN          string `json:"npn" validate:"required,max=64"`
	Carrier      string `json:"carrier,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	Page         int    `json:"page,omitempty" validate:"gte=0"`
	Limit        int    `json:"limit,omitempty" validate:"gte=0,lte=500"`
	Search       string `json:"search,omitempty" validate:"max=200"`
	Status       string `json:"status,omitempty"`
	ActionStatus string `json:"actionStatus,omitempty"`
	Bob          string `json:"bob,omitempty" validate:"omitempty,oneof=Y N y n"`
	// SelfOnly restricts owners to the requesting NPN instead of its downline.
	SelfOnly bool `json:"selfOnly,omitempty"`
}

// Validate checks struct-level rules and reports the first offending field.
func (f Filter) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidFilter, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}
}

// RequestedBob returns the normalized bob flag, or "" when absent.
func (f Filter) RequestedBob() Bob {
	b, err := ParseBob(f.Bob)
	if err != nil {
		return ""
	}
	return b
}

// PageNumber returns the 1-based page, defaulting to 1.
func (f Filter) PageNumber() int {
	if f.Page <= 0 {
		return DefaultPage
	}
	return f.Page
}

func (f Filter) PageLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	}
	return f.Limit
}

func (f Filter) Offset() int {
	return (f.PageNumber() - 1) * f.PageLimit()
}

// TotalPages rounds up; zero items yield zero pages.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

package policy

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the carrier-reported lifecycle state of a policy.
type Status string

const (
	StatusSubmitted   Status = "Submitted"
	StatusActive      Status = "Active"
	StatusLapsed      Status = "Lapsed"
	StatusEffectuated Status = "Effectuated"
	StatusCancelled   Status = "Cancelled"
)

// Statuses lists every status in reporting order.
var Statuses = []Status{StatusSubmitted, StatusActive, StatusLapsed, StatusEffectuated, StatusCancelled}

// ActionStatus tracks back-office follow-up on a policy.
type ActionStatus string

const (
	ActionPending   ActionStatus = "Pending"
	ActionCompleted ActionStatus = "Completed"
	ActionRejected  ActionStatus = "Rejected"
)

var ActionStatuses = []ActionStatus{ActionPending, ActionCompleted, ActionRejected}

// Bob is the book-of-business flag. Y marks finalized business, N underwriting pipeline.
type Bob string

const (
	BobYes Bob = "Y"
	BobNo  Bob = "N"
)

// Policy is a single insurance policy owned by an agent.
type Policy struct {
	ID                  string
	PolicyNumber        string
	OwnerNPN            string
	AgentName           string
	ClientName          string
	Carrier             string
	Product             string
	ReceivedDate        time.Time
	Status              Status
	ActionStatus        ActionStatus
	Bob                 Bob
	AnnualizedPremium   decimal.Decimal
	ActionCompletedDate *time.Time
	FirstTakeActionDate *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ParseStatus matches case-insensitively.
func ParseStatus(v string) (Status, error) {
	for _, s := range Statuses {
		if strings.EqualFold(string(s), strings.TrimSpace(v)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, v)
}

// ParseActionStatus matches case-insensitively.
func ParseActionStatus(v string) (ActionStatus, error) {
	for _, s := range ActionStatuses {
		if strings.EqualFold(string(s), strings.TrimSpace(v)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action status %q", ErrInvalidStatus, v)
}

func ParseBob(v string) (Bob, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "Y":
		return BobYes, nil
	case "N":
		return BobNo, nil
	}
	return "", fmt.Errorf("%w: bob must be Y or N, got %q", ErrInvalidStatus, v)
}

// NormalizeCarrier produces the canonical upper-snake-case carrier key used in
// storage and filtering: "Blue Cross  Blue-Shield" becomes "BLUE_CROSS_BLUE_SHIELD".
func NormalizeCarrier(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return cases.Upper(language.Und).String(b.String())
}

// ParseCarriers splits a comma-separated list, normalizing each entry and
// dropping empties and duplicates.
func ParseCarriers(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(csv, ",") {
		c := NormalizeCarrier(part)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

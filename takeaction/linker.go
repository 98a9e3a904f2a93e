package takeaction

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"agencyflow/policy"
)

// Linker joins policies to their most recent action record.
type Linker struct {
	store Store
}

func NewLinker(store Store) *Linker {
	return &Linker{store: store}
}

// Link returns the latest record per policy number under the bob constraint.
// Policies without a record are absent from the map.
func (l *Linker) Link(ctx context.Context, numbers []string, bob *policy.Bob) (map[string]Link, error) {
	latest, err := l.store.Latest(ctx, numbers, bob)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Link, len(latest))
	for number, rec := range latest {
		out[number] = Link{
			IssueType:        NormalizeIssueType(rec.Status),
			IssueDescription: rec.Requirements,
		}
	}
	return out, nil
}

var issueTypes = map[string]string{
	"pending":     "Pending",
	"open":        "Pending",
	"new":         "Pending",
	"awaiting":    "Pending",
	"in progress": "In Progress",
	"inprogress":  "In Progress",
	"working":     "In Progress",
	"processing":  "In Progress",
	"completed":   "Completed",
	"complete":    "Completed",
	"done":        "Completed",
	"resolved":    "Completed",
	"closed":      "Completed",
	"rejected":    "Rejected",
	"declined":    "Rejected",
	"denied":      "Rejected",
}

// NormalizeIssueType maps free-text record statuses onto the display vocabulary.
// Unrecognized text is title-cased.
func NormalizeIssueType(status string) string {
	words := strings.FieldsFunc(strings.ToLower(status), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	})
	key := strings.Join(words, " ")
	if key == "" {
		return ""
	}
	if v, ok := issueTypes[key]; ok {
		return v
	}
	return cases.Title(language.English).String(key)
}

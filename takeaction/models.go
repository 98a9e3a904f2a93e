package takeaction

import (
	"time"

	"agencyflow/policy"
)

// Record is a follow-up note attached to a policy by business key. Records are
// identified by UUIDv7 so descending id order is newest first.
type Record struct {
	ID           string
	PolicyNumber string
	Status       string
	Requirements string
	Sender       string
	Bob          policy.Bob
	CreatedAt    time.Time
}

// NoteRequest is the input for creating a take-action note.
type NoteRequest struct {
	PolicyNumber string `json:"policyNumber" validate:"required,max=64"`
	Status       string `json:"status" validate:"required,max=64"`
	Requirements string `json:"requirements" validate:"max=4000"`
	Sender       string `json:"sender" validate:"max=128"`
}

// Link is the denormalized view of a policy's latest record.
type Link struct {
	IssueType        string
	IssueDescription string
}

package takeaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"agencyflow/policy"
)

// PolicyLookup is the slice of the policy store note creation depends on.
type PolicyLookup interface {
	GetByNumber(ctx context.Context, number string) (policy.Policy, error)
	StampFirstTakeAction(ctx context.Context, number string, at time.Time) error
}

var validate = validator.New()

// Service creates and reads take-action notes.
type Service struct {
	store    Store
	policies PolicyLookup
	now      func() time.Time
}

func NewService(store Store, policies PolicyLookup) *Service {
	return &Service{store: store, policies: policies, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateNote appends a record to an existing policy. The record inherits the
// policy's bob flag, and the policy's first take-action date is stamped when unset.
func (s *Service) CreateNote(ctx context.Context, req NoteRequest) (Record, error) {
	req.PolicyNumber = strings.TrimSpace(req.PolicyNumber)
	req.Status = strings.TrimSpace(req.Status)
	if err := validate.Struct(req); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidNote, err)
	}

	pol, err := s.policies.GetByNumber(ctx, req.PolicyNumber)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return Record{}, fmt.Errorf("%w: policy %s", ErrNotFound, req.PolicyNumber)
		}
		return Record{}, err
	}

	rec, err := s.store.Create(ctx, Record{
		PolicyNumber: pol.PolicyNumber,
		Status:       req.Status,
		Requirements: req.Requirements,
		Sender:       req.Sender,
		Bob:          pol.Bob,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return Record{}, err
	}

	if pol.FirstTakeActionDate == nil {
		if err := s.policies.StampFirstTakeAction(ctx, pol.PolicyNumber, rec.CreatedAt); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// FirstActionAt reports the oldest record timestamp for a policy, of any bob.
func (s *Service) FirstActionAt(ctx context.Context, policyNumber string) (time.Time, bool, error) {
	times, err := s.store.FirstActionTimes(ctx, []string{policyNumber}, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	at, ok := times[policyNumber]
	return at, ok, nil
}

// History lists a policy's records, newest first.
func (s *Service) History(ctx context.Context, policyNumber string) ([]Record, error) {
	if _, err := s.policies.GetByNumber(ctx, policyNumber); err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			return nil, fmt.Errorf("%w: policy %s", ErrNotFound, policyNumber)
		}
		return nil, err
	}
	return s.store.ListForPolicy(ctx, policyNumber)
}

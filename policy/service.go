package policy

import (
	"context"
	"fmt"
	"time"
)

// FirstActionFinder locates the oldest action record for a policy number.
type FirstActionFinder interface {
	FirstActionAt(ctx context.Context, policyNumber string) (time.Time, bool, error)
}

// Service applies write-side business rules to policies.
type Service struct {
	store  Store
	finder FirstActionFinder
	now    func() time.Time
}

func NewService(store Store, finder FirstActionFinder) *Service {
	return &Service{store: store, finder: finder, now: time.Now}
}

// WithClock overrides the time source, primarily for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// UpdateActionStatus moves a policy to the requested action status. A move to
// Completed stamps the completion date. A missing first take-action date is
// back-filled from the oldest linked action record, never from the current time.
func (s *Service) UpdateActionStatus(ctx context.Context, id, status string) (Policy, error) {
	next, err := ParseActionStatus(status)
	if err != nil {
		return Policy{}, err
	}

	return s.store.Transition(ctx, id, func(p *Policy) error {
		p.ActionStatus = next
		if next == ActionCompleted {
			now := s.now().UTC()
			p.ActionCompletedDate = &now
		}
		if p.FirstTakeActionDate != nil || s.finder == nil {
			return nil
		}
		at, ok, err := s.finder.FirstActionAt(ctx, p.PolicyNumber)
		if err != nil {
			return fmt.Errorf("policy: find first take action: %w", err)
		}
		if ok {
			p.FirstTakeActionDate = &at
		}
		return nil
	})
}

// Get returns a policy by id.
func (s *Service) Get(ctx context.Context, id string) (Policy, error) {
	return s.store.GetByID(ctx, id)
}

// GetByNumber returns a policy by its business key.
func (s *Service) GetByNumber(ctx context.Context, number string) (Policy, error) {
	return s.store.GetByNumber(ctx, number)
}

package agent

import "context"

// Reader abstracts the lookups the service needs.
type Reader interface {
	FindByNPN(ctx context.Context, npn string) (Agent, error)
}

// Service exposes agent lookups to the HTTP layer.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Get returns the agent or ErrNotFound.
func (s *Service) Get(ctx context.Context, npn string) (Agent, error) {
	return s.repo.FindByNPN(ctx, npn)
}

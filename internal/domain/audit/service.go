package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service writes and reads the audit trail. Record is best effort: a write
// failure is logged and swallowed so auditing never fails the operation it
// describes.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends one trail entry. It satisfies the Auditor interface the
// domain services declare.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, action, resource string, resourceID uuid.UUID, summary string) {
	e := &Entry{
		ID:         NewEntryID(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Summary:    summary,
	}
	if ip, ok := ctx.Value(ipKey{}).(string); ok && ip != "" {
		e.IPAddress = &ip
	}
	if err := s.repo.Append(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("action", action).
			Str("resource", resource).
			Msg("audit append failed")
	}
}

// List reads the trail. Access control sits in the handler; only admins
// get there.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

type ipKey struct{}

// WithClientIP stamps the caller's address into the context so Record can
// attach it. The HTTP layer sets it once per request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

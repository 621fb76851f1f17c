package audit

import "context"

// Filter narrows a trail query. Zero values match everything.
type Filter struct {
	UserID   string
	Resource string
	Action   string
}

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}

package store

import (
	"context"
	"errors"

	"edumarket_bff/internals/features/session/model"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions and their payment breadcrumbs.
// Breadcrumb writes replace the whole set; TakeBreadcrumbs reads and clears atomically.
type Store interface {
	Load(ctx context.Context, id string) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, id string) error

	WriteBreadcrumbs(ctx context.Context, id string, b model.Breadcrumbs) error
	ReadBreadcrumbs(ctx context.Context, id string) (model.Breadcrumbs, error)
	TakeBreadcrumbs(ctx context.Context, id string) (model.Breadcrumbs, error)
	ClearBreadcrumbs(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

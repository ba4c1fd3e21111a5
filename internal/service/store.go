package service

import (
	"context"

	"github.com/fjod/storefront/internal/repository"
)

// Store is the persistence the services need. Consumers define this interface.
type Store interface {
	repository.Querier
	ExecTx(ctx context.Context, fn func(q repository.Querier) error) error
}

var _ Store = (*repository.Store)(nil)

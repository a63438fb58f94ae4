// Package profiles stores the participant profiles that rankings read.
// Lookups of unknown ids return model.ErrProfileNotFound.
package profiles

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/matchlearn/internal/domain/model"
)

// Store kinds.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
)

// Store reads and writes profiles.
type Store interface {
	// Get returns one profile.
	Get(ctx context.Context, id string) (model.Profile, error)

	// GetMany returns the profiles it finds keyed by id. Missing ids are
	// absent from the result rather than an error.
	GetMany(ctx context.Context, ids []string) (map[string]model.Profile, error)

	// Put inserts or replaces profiles.
	Put(ctx context.Context, profiles ...model.Profile) error

	// Delete removes a profile. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error

	Close() error
}

func validate(p model.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidProfile)
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", model.ErrProfileNotFound, id)
}

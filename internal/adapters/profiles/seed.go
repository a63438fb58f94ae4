package profiles

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/matchlearn/internal/domain/model"
)

// SeedFile is the on-disk layout of a profile seed.
//
//	profiles:
//	  - id: A
//	    city: Boston
//	    expertise: [oncology, biotech]
//	    compliance_score: 90
type SeedFile struct {
	Profiles []model.Profile `yaml:"profiles"`
}

// LoadSeedFile reads profiles from a YAML file. Ids must be present and unique.
func LoadSeedFile(path string) ([]model.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML profile seed.
func ParseSeed(data []byte) ([]model.Profile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	seen := make(map[string]struct{}, len(f.Profiles))
	for i, p := range f.Profiles {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrInvalidSeed, i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidSeed, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return f.Profiles, nil
}

// Seed loads path into store and returns how many profiles were written.
func Seed(ctx context.Context, store Store, path string) (int, error) {
	ps, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	if err := store.Put(ctx, ps...); err != nil {
		return 0, fmt.Errorf("seeding profiles: %w", err)
	}
	return len(ps), nil
}

// Package store persists profiles and the active-profile marker.
//
// Three backends share one contract: FileStore (YAML on disk), RedisStore
// (hashes in a Redis database) and MemoryStore (process-local). The active
// marker lives beside the records, never on them; List and Get derive
// Profile.IsActive from it.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/util"
)

// DefaultIcon is assigned to profiles stored without one.
const DefaultIcon = "router"

// Store is the profile repository used by the switch coordinator and the CLI.
type Store interface {
	// List returns every profile ordered by SortOrder, then Name.
	List(ctx context.Context) ([]model.Profile, error)
	// Get returns one profile or an error wrapping util.ErrNotFound.
	Get(ctx context.Context, id string) (*model.Profile, error)
	// Put validates and inserts or replaces p. A profile without an ID is
	// assigned a fresh one and placed after every existing profile.
	Put(ctx context.Context, p *model.Profile) error
	// Delete removes a profile, clearing the active marker if it pointed at it.
	Delete(ctx context.Context, id string) error
	// SetActive marks id active and stamps its LastUsed. "" clears the marker.
	SetActive(ctx context.Context, id string) error
	// ActiveID returns the active profile id, or "".
	ActiveID(ctx context.Context) (string, error)
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string // file backend
	RedisAddr     string
	RedisDB       int
	RedisPassword string
}

// Open constructs the configured backend. Redis stores are pinged before
// being returned.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file store: path not set: %w", util.ErrInvalidConfig)
		}
		return NewFileStore(cfg.Path), nil
	case BackendRedis:
		s := NewRedisStore(RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Password: cfg.RedisPassword})
		if err := s.Connect(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis store at %s: %w", cfg.RedisAddr, err)
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q: %w", cfg.Backend, util.ErrInvalidConfig)
	}
}

// collection is the in-memory form shared by the file and memory backends.
type collection struct {
	Active   string          `yaml:"active,omitempty"`
	Profiles []model.Profile `yaml:"profiles"`
}

func (c *collection) index(id string) int {
	for i := range c.Profiles {
		if c.Profiles[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *collection) list() []model.Profile {
	out := make([]model.Profile, len(c.Profiles))
	copy(out, c.Profiles)
	for i := range out {
		out[i].IsActive = c.Active != "" && out[i].ID == c.Active
	}
	sortProfiles(out)
	return out
}

func (c *collection) get(id string) (*model.Profile, error) {
	i := c.index(id)
	if i < 0 {
		return nil, util.NewNotFoundError("profile", id)
	}
	p := c.Profiles[i]
	p.IsActive = p.ID == c.Active
	return &p, nil
}

func (c *collection) put(p *model.Profile) error {
	if err := prepare(p, len(c.Profiles)); err != nil {
		return err
	}
	rec := *p
	rec.IsActive = false
	if i := c.index(p.ID); i >= 0 {
		c.Profiles[i] = rec
		return nil
	}
	c.Profiles = append(c.Profiles, rec)
	return nil
}

func (c *collection) remove(id string) error {
	i := c.index(id)
	if i < 0 {
		return util.NewNotFoundError("profile", id)
	}
	c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
	if c.Active == id {
		c.Active = ""
	}
	return nil
}

func (c *collection) setActive(id string, now time.Time) error {
	if id == "" {
		c.Active = ""
		return nil
	}
	i := c.index(id)
	if i < 0 {
		return util.NewNotFoundError("profile", id)
	}
	c.Active = id
	c.Profiles[i].LastUsed = now
	return nil
}

// prepare validates p and fills store-assigned fields. count is the number
// of profiles already stored.
func prepare(p *model.Profile, count int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
		p.SortOrder = count
	}
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	return nil
}

func sortProfiles(ps []model.Profile) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].SortOrder != ps[j].SortOrder {
			return ps[i].SortOrder < ps[j].SortOrder
		}
		return ps[i].Name < ps[j].Name
	})
}

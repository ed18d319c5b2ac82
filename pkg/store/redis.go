package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/starsdaisuki/stargate/pkg/model"
	"github.com/starsdaisuki/stargate/pkg/util"
)

// Redis layout: one hash per profile at "STARGATE_PROFILE|<id>" and the
// active id as a plain string at "STARGATE_ACTIVE".
const (
	ProfileTable = "STARGATE_PROFILE"
	ActiveKey    = "STARGATE_ACTIVE"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	DB       int
	Password string
}

// RedisStore keeps profiles in Redis so several devices or hosts can share them.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore creates a store; call Connect to verify the server.
func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			DB:       opts.DB,
			Password: opts.Password,
		}),
		now: time.Now,
	}
}

// Connect tests the connection.
func (s *RedisStore) Connect(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func profileKey(id string) string {
	return ProfileTable + "|" + id
}

func (s *RedisStore) List(ctx context.Context) ([]model.Profile, error) {
	keys, err := s.client.Keys(ctx, ProfileTable+"|*").Result()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	active, err := s.ActiveID(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make([]model.Profile, 0, len(keys))
	for _, key := range keys {
		vals, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if len(vals) == 0 {
			continue
		}
		p := profileFromHash(strings.TrimPrefix(key, ProfileTable+"|"), vals)
		p.IsActive = p.ID == active
		profiles = append(profiles, p)
	}
	sortProfiles(profiles)
	return profiles, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Profile, error) {
	vals, err := s.client.HGetAll(ctx, profileKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, util.NewNotFoundError("profile", id)
	}
	active, err := s.ActiveID(ctx)
	if err != nil {
		return nil, err
	}
	p := profileFromHash(id, vals)
	p.IsActive = id == active
	return &p, nil
}

func (s *RedisStore) Put(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		keys, err := s.client.Keys(ctx, ProfileTable+"|*").Result()
		if err != nil {
			return fmt.Errorf("counting profiles: %w", err)
		}
		if err := prepare(p, len(keys)); err != nil {
			return err
		}
	} else if err := prepare(p, 0); err != nil {
		return err
	}

	// Replace the whole hash so cleared fields do not linger.
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, profileKey(p.ID))
	pipe.HSet(ctx, profileKey(p.ID), profileToHash(p))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, profileKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking profile %s: %w", id, err)
	}
	if n == 0 {
		return util.NewNotFoundError("profile", id)
	}
	active, err := s.ActiveID(ctx)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, profileKey(id))
	if active == id {
		pipe.Del(ctx, ActiveKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) SetActive(ctx context.Context, id string) error {
	if id == "" {
		return s.client.Del(ctx, ActiveKey).Err()
	}
	n, err := s.client.Exists(ctx, profileKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking profile %s: %w", id, err)
	}
	if n == 0 {
		return util.NewNotFoundError("profile", id)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ActiveKey, id, 0)
	pipe.HSet(ctx, profileKey(id), "last_used", s.now().UTC().Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("activating profile %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) ActiveID(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, ActiveKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading active profile: %w", err)
	}
	return id, nil
}

func profileToHash(p *model.Profile) map[string]interface{} {
	h := map[string]interface{}{
		"name":       p.Name,
		"use_dhcp":   strconv.FormatBool(p.UseDHCP),
		"sort_order": strconv.Itoa(p.SortOrder),
	}
	for field, v := range map[string]string{
		"icon":        p.Icon,
		"color":       p.Color,
		"ip_address":  p.IPAddress,
		"gateway":     p.Gateway,
		"subnet_mask": p.SubnetMask,
		"dns1":        p.DNS1,
		"dns2":        p.DNS2,
	} {
		if v != "" {
			h[field] = v
		}
	}
	if !p.LastUsed.IsZero() {
		h["last_used"] = p.LastUsed.UTC().Format(time.RFC3339)
	}
	return h
}

func profileFromHash(id string, vals map[string]string) model.Profile {
	p := model.Profile{
		ID:         id,
		Name:       vals["name"],
		Icon:       vals["icon"],
		Color:      vals["color"],
		UseDHCP:    vals["use_dhcp"] == "true",
		IPAddress:  vals["ip_address"],
		Gateway:    vals["gateway"],
		SubnetMask: vals["subnet_mask"],
		DNS1:       vals["dns1"],
		DNS2:       vals["dns2"],
	}
	p.SortOrder, _ = strconv.Atoi(vals["sort_order"])
	if ts, err := time.Parse(time.RFC3339, vals["last_used"]); err == nil {
		p.LastUsed = ts
	}
	return p
}

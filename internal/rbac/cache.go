package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	mappingVersionKey  = "rbac:mapping:version"
	mappingLoadTimeout = 5 * time.Second
)

// RoleLister loads the persisted permissions of a role.
type RoleLister interface {
	ListByRole(ctx context.Context, role string) ([]Permission, error)
}

// CachedMappings serves RoleHasPermission from a versioned Redis cache of
// per-role permission lists. Invalidate bumps the version so edits made
// through the Service are visible immediately on every node; edits made
// behind its back are visible after at most ttl.
type CachedMappings struct {
	source RoleLister
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCachedMappings wraps source. A nil client or non-positive ttl disables
// caching and every lookup goes to source.
func NewCachedMappings(source RoleLister, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedMappings {
	return &CachedMappings{source: source, client: client, ttl: ttl, logger: logger}
}

func (c *CachedMappings) enabled() bool {
	return c.client != nil && c.ttl > 0
}

// RoleHasPermission implements MappingReader.
func (c *CachedMappings) RoleHasPermission(ctx context.Context, role string, perm Permission) (bool, error) {
	perms, err := c.permissions(ctx, role)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops every cached role list.
func (c *CachedMappings) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	if err := c.client.Incr(ctx, mappingVersionKey).Err(); err != nil {
		return fmt.Errorf("rbac: invalidate mapping cache: %w", err)
	}
	return nil
}

func (c *CachedMappings) permissions(ctx context.Context, role string) ([]Permission, error) {
	if !c.enabled() {
		return c.source.ListByRole(ctx, role)
	}
	key, err := c.key(ctx, role)
	if err != nil {
		c.warn("rbac cache version", err)
		return c.source.ListByRole(ctx, role)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var perms []Permission
		if err := json.Unmarshal(raw, &perms); err == nil {
			return perms, nil
		}
		c.warn("rbac cache decode", err)
	case !errors.Is(err, redis.Nil):
		c.warn("rbac cache get", err)
		return c.source.ListByRole(ctx, role)
	}

	// The shared load outlives any single caller; each caller still stops
	// waiting when its own ctx ends.
	res := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mappingLoadTimeout)
		defer cancel()
		perms, err := c.source.ListByRole(loadCtx, role)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(perms); err == nil {
			if err := c.client.Set(loadCtx, key, data, c.ttl).Err(); err != nil {
				c.warn("rbac cache set", err)
			}
		}
		return perms, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]Permission), nil
	}
}

func (c *CachedMappings) key(ctx context.Context, role string) (string, error) {
	ver, err := c.client.Get(ctx, mappingVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		ver = 0
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("rbac:mapping:%s:%d", role, ver), nil
}

func (c *CachedMappings) warn(msg string, err error) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.Any("error", err))
	}
}

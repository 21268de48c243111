package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	lcotel "github.com/Strob0t/LabCore/internal/adapter/otel"
	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/port/cache"
	"github.com/Strob0t/LabCore/internal/port/database"
	"github.com/Strob0t/LabCore/internal/port/messagequeue"
)

// DirectoryService answers which tenants a user belongs to and manages
// memberships. Membership lists are cached per user; every change drops the
// cached list here and, through the queue, in every other process.
type DirectoryService struct {
	store   database.Store
	cache   cache.Cache
	ttl     time.Duration
	queue   messagequeue.Queue
	metrics *lcotel.Metrics
	group   singleflight.Group
	// gens counts invalidations per user. A fill whose snapshot predates an
	// invalidation must not reach the cache.
	gens sync.Map
}

// NewDirectoryService creates a DirectoryService. c may be nil to disable
// caching; ttl bounds how long a cached membership list is trusted.
func NewDirectoryService(store database.Store, c cache.Cache, ttl time.Duration) *DirectoryService {
	return &DirectoryService{store: store, cache: c, ttl: ttl}
}

// SetQueue enables cross-process cache invalidation.
func (s *DirectoryService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetMetrics enables cache hit/miss counters.
func (s *DirectoryService) SetMetrics(m *lcotel.Metrics) { s.metrics = m }

// MembershipsFor returns every membership of userID, active or not.
func (s *DirectoryService) MembershipsFor(ctx context.Context, userID string) ([]tenant.Membership, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	key := cache.MembershipKey(userID)

	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err != nil {
			slog.WarnContext(ctx, "membership cache read failed", "user_id", userID, "error", err)
		} else if ok {
			var ms []tenant.Membership
			if err := json.Unmarshal(data, &ms); err == nil {
				s.metrics.RecordCacheLookup(ctx, true)
				return ms, nil
			}
			slog.WarnContext(ctx, "membership cache entry corrupt", "user_id", userID)
		}
		s.metrics.RecordCacheLookup(ctx, false)
	}

	v, err, _ := s.group.Do(userID, func() (any, error) {
		gen := s.generation(userID)
		before := gen.Load()
		ms, err := s.store.ListMembershipsByUser(context.WithoutCancel(ctx), userID)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && gen.Load() == before {
			s.fill(ctx, userID, key, ms)
			// An invalidation between the check and the write may have
			// deleted before we wrote.
			if gen.Load() != before {
				_ = s.cache.Delete(context.WithoutCancel(ctx), key)
			}
		}
		return ms, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memberships for %s: %w", userID, err)
	}
	return v.([]tenant.Membership), nil
}

// Resolve picks the membership that establishes the request's tenant scope.
// requested may be a tenant ID, a tenant slug, or empty.
func (s *DirectoryService) Resolve(ctx context.Context, userID, requested string) (m *tenant.Membership, err error) {
	ctx, span := lcotel.StartResolveSpan(ctx, userID, requested)
	defer func() { lcotel.EndSpan(span, err) }()

	all, err := s.MembershipsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	usable := make([]tenant.Membership, 0, len(all))
	for i := range all {
		if all[i].Usable() {
			usable = append(usable, all[i])
		}
	}
	if len(usable) == 0 {
		return nil, domain.ErrNoActiveMembership
	}

	if requested == "" {
		if len(usable) > 1 {
			return nil, domain.ErrTenantSelectionRequired
		}
		return &usable[0], nil
	}

	for i := range usable {
		if usable[i].TenantID == requested || usable[i].TenantSlug == requested {
			return &usable[i], nil
		}
	}
	for i := range all {
		if (all[i].TenantID == requested || all[i].TenantSlug == requested) && all[i].Active && !all[i].TenantActive {
			return nil, domain.ErrTenantInactive
		}
	}
	return nil, domain.ErrNotMember
}

func (s *DirectoryService) fill(ctx context.Context, userID, key string, ms []tenant.Membership) {
	data, err := json.Marshal(ms)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.WarnContext(ctx, "membership cache write failed", "user_id", userID, "error", err)
	}
}

func (s *DirectoryService) generation(userID string) *atomic.Uint64 {
	v, _ := s.gens.LoadOrStore(userID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// ListMembers returns the memberships of tenantID.
func (s *DirectoryService) ListMembers(ctx context.Context, tenantID string) ([]tenant.Membership, error) {
	return s.store.ListMembershipsByTenant(ctx, tenantID)
}

// Grant adds a user to tenantID, or reactivates a revoked membership with the
// given role.
func (s *DirectoryService) Grant(ctx context.Context, tenantID string, req tenant.GrantRequest) (*tenant.Membership, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("grant: tenant %s: %w", tenantID, err)
	}
	if !t.Active {
		return nil, domain.ErrTenantInactive
	}
	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("grant: user %s: %w", req.UserID, err)
	}

	m, err := s.store.UpsertMembership(ctx, tenantID, req.UserID, req.Role)
	if err != nil {
		return nil, fmt.Errorf("grant: %w", err)
	}
	s.Invalidate(ctx, req.UserID)
	slog.InfoContext(ctx, "membership granted", "user_id", req.UserID, "role", req.Role)
	return m, nil
}

// Revoke deactivates a membership. The last active admin of a tenant cannot
// be revoked.
func (s *DirectoryService) Revoke(ctx context.Context, tenantID, userID string) error {
	if err := s.guardLastAdmin(ctx, tenantID, userID); err != nil {
		return err
	}
	if err := s.store.SetMembershipActive(ctx, tenantID, userID, false); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	s.Invalidate(ctx, userID)
	slog.InfoContext(ctx, "membership revoked", "user_id", userID)
	return nil
}

// ChangeRole sets a member's role. The last active admin cannot be demoted.
func (s *DirectoryService) ChangeRole(ctx context.Context, tenantID, userID string, role tenant.Role) error {
	if !tenant.ValidRoles[role] {
		return fmt.Errorf("%w: invalid role %q", domain.ErrValidation, role)
	}
	if role != tenant.RoleAdmin {
		if err := s.guardLastAdmin(ctx, tenantID, userID); err != nil {
			return err
		}
	}
	if err := s.store.UpdateMembershipRole(ctx, tenantID, userID, role); err != nil {
		return fmt.Errorf("change role: %w", err)
	}
	s.Invalidate(ctx, userID)
	slog.InfoContext(ctx, "membership role changed", "user_id", userID, "role", role)
	return nil
}

func (s *DirectoryService) guardLastAdmin(ctx context.Context, tenantID, userID string) error {
	members, err := s.store.ListMembershipsByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	target, admins := false, 0
	for i := range members {
		if !members[i].Active || members[i].Role != tenant.RoleAdmin {
			continue
		}
		admins++
		if members[i].UserID == userID {
			target = true
		}
	}
	if target && admins == 1 {
		return fmt.Errorf("%w: a tenant must keep at least one active admin", domain.ErrValidation)
	}
	return nil
}

// Invalidate drops the cached memberships of userID and tells other
// processes to drop their local copies.
func (s *DirectoryService) Invalidate(ctx context.Context, userID string) {
	key := cache.MembershipKey(userID)
	s.generation(userID).Add(1)
	if s.cache != nil {
		if err := s.cache.Delete(ctx, key); err != nil {
			slog.WarnContext(ctx, "membership cache delete failed", "user_id", userID, "error", err)
		}
	}
	s.group.Forget(userID)

	if s.queue == nil {
		return
	}
	if err := s.queue.Publish(context.WithoutCancel(ctx), messagequeue.SubjectMembershipChanged, []byte(userID)); err != nil {
		slog.WarnContext(ctx, "membership change publish failed", "user_id", userID, "error", err)
	}
}

// ListenForChanges evicts local cache entries when another process reports a
// membership change. It is a no-op without a queue or a local cache level.
func (s *DirectoryService) ListenForChanges(ctx context.Context) (cancel func(), err error) {
	ev, ok := s.cache.(cache.Evicter)
	if s.queue == nil || !ok {
		return func() {}, nil
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectMembershipChanged, func(ctx context.Context, _ string, data []byte) error {
		userID := string(data)
		if userID == "" {
			return errors.New("membership change without user id")
		}
		s.generation(userID).Add(1)
		s.group.Forget(userID)
		return ev.EvictLocal(ctx, cache.MembershipKey(userID))
	})
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/port/cache"
	"github.com/Strob0t/LabCore/internal/port/messagequeue"
)

func newDirectoryFixture() (*DirectoryService, *fakeStore, *memCache) {
	store := newFakeStore()
	store.addTenant("t-a", "lab-a", true)
	store.addTenant("t-b", "lab-b", true)
	store.addTenant("t-off", "lab-off", false)
	store.addUser("u-1")
	store.addUser("u-2")
	c := newMemCache()
	return NewDirectoryService(store, c, time.Minute), store, c
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		members   []tenant.Membership
		requested string
		wantTID   string
		wantErr   error
	}{
		{
			name:    "single membership selected implicitly",
			members: []tenant.Membership{{TenantID: "t-a", Role: tenant.RoleAdmin, Active: true}},
			wantTID: "t-a",
		},
		{
			name:    "no memberships",
			wantErr: domain.ErrNoActiveMembership,
		},
		{
			name:    "only revoked memberships",
			members: []tenant.Membership{{TenantID: "t-a", Role: tenant.RoleAdmin, Active: false}},
			wantErr: domain.ErrNoActiveMembership,
		},
		{
			name:    "only deactivated tenants",
			members: []tenant.Membership{{TenantID: "t-off", Role: tenant.RoleAdmin, Active: true}},
			wantErr: domain.ErrNoActiveMembership,
		},
		{
			name: "several memberships need a selection",
			members: []tenant.Membership{
				{TenantID: "t-a", Role: tenant.RoleAdmin, Active: true},
				{TenantID: "t-b", Role: tenant.RoleFinance, Active: true},
			},
			wantErr: domain.ErrTenantSelectionRequired,
		},
		{
			name: "selection by id",
			members: []tenant.Membership{
				{TenantID: "t-a", Role: tenant.RoleAdmin, Active: true},
				{TenantID: "t-b", Role: tenant.RoleFinance, Active: true},
			},
			requested: "t-b",
			wantTID:   "t-b",
		},
		{
			name: "selection by slug",
			members: []tenant.Membership{
				{TenantID: "t-a", Role: tenant.RoleAdmin, Active: true},
				{TenantID: "t-b", Role: tenant.RoleFinance, Active: true},
			},
			requested: "lab-a",
			wantTID:   "t-a",
		},
		{
			name:      "requested tenant without membership",
			members:   []tenant.Membership{{TenantID: "t-a", Role: tenant.RoleAdmin, Active: true}},
			requested: "t-b",
			wantErr:   domain.ErrNotMember,
		},
		{
			name: "requested tenant with revoked membership",
			members: []tenant.Membership{
				{TenantID: "t-a", Role: tenant.RoleAdmin, Active: true},
				{TenantID: "t-b", Role: tenant.RoleAdmin, Active: false},
			},
			requested: "t-b",
			wantErr:   domain.ErrNotMember,
		},
		{
			name: "requested tenant is deactivated",
			members: []tenant.Membership{
				{TenantID: "t-a", Role: tenant.RoleAdmin, Active: true},
				{TenantID: "t-off", Role: tenant.RoleAdmin, Active: true},
			},
			requested: "t-off",
			wantErr:   domain.ErrTenantInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, store, _ := newDirectoryFixture()
			for _, m := range tt.members {
				store.addMember(m.TenantID, "u-1", m.Role, m.Active)
			}

			m, err := dir.Resolve(context.Background(), "u-1", tt.requested)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.TenantID != tt.wantTID {
				t.Fatalf("expected tenant %s, got %s", tt.wantTID, m.TenantID)
			}
		})
	}
}

func TestMembershipsForUsesCache(t *testing.T) {
	dir, store, c := newDirectoryFixture()
	store.addMember("t-a", "u-1", tenant.RoleAdmin, true)
	ctx := context.Background()

	for range 3 {
		ms, err := dir.MembershipsFor(ctx, "u-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ms) != 1 {
			t.Fatalf("expected 1 membership, got %d", len(ms))
		}
	}
	if n := store.listByUserCalls.Load(); n != 1 {
		t.Fatalf("expected 1 store call, got %d", n)
	}
	if _, ok, _ := c.Get(ctx, cache.MembershipKey("u-1")); !ok {
		t.Fatal("expected cached entry")
	}
}

func TestMembershipsForCollapsesConcurrentMisses(t *testing.T) {
	store := newFakeStore()
	store.addTenant("t-a", "lab-a", true)
	store.addMember("t-a", "u-1", tenant.RoleAdmin, true)
	store.listByUserDelay = 50 * time.Millisecond
	dir := NewDirectoryService(store, nil, time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dir.MembershipsFor(context.Background(), "u-1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := store.listByUserCalls.Load(); n >= 10 {
		t.Fatalf("expected concurrent lookups to be collapsed, got %d store calls", n)
	}
}

func TestMembershipsForStoreError(t *testing.T) {
	dir, store, c := newDirectoryFixture()
	store.listByUserErr = errors.New("db down")

	if _, err := dir.MembershipsFor(context.Background(), "u-1"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok, _ := c.Get(context.Background(), cache.MembershipKey("u-1")); ok {
		t.Fatal("failed lookup must not be cached")
	}
}

func TestMembershipsForRequiresUser(t *testing.T) {
	dir, _, _ := newDirectoryFixture()
	if _, err := dir.MembershipsFor(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGrantInvalidatesCache(t *testing.T) {
	dir, store, _ := newDirectoryFixture()
	q := newFakeQueue()
	dir.SetQueue(q)
	store.addMember("t-a", "u-1", tenant.RoleAdmin, true)
	ctx := context.Background()

	if _, err := dir.Resolve(ctx, "u-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := dir.Grant(ctx, "t-b", tenant.GrantRequest{UserID: "u-1", Role: tenant.RoleTechnician}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if _, err := dir.Resolve(ctx, "u-1", ""); !errors.Is(err, domain.ErrTenantSelectionRequired) {
		t.Fatalf("expected the new membership to be visible, got %v", err)
	}
	if len(q.published) != 1 || q.published[0] != messagequeue.SubjectMembershipChanged+":u-1" {
		t.Fatalf("unexpected publications: %v", q.published)
	}
}

func TestGrantValidation(t *testing.T) {
	dir, _, _ := newDirectoryFixture()
	ctx := context.Background()

	tests := []struct {
		name     string
		tenantID string
		req      tenant.GrantRequest
		wantErr  error
	}{
		{"unknown role", "t-a", tenant.GrantRequest{UserID: "u-1", Role: "owner"}, domain.ErrValidation},
		{"missing user id", "t-a", tenant.GrantRequest{Role: tenant.RoleAdmin}, domain.ErrValidation},
		{"unknown tenant", "t-x", tenant.GrantRequest{UserID: "u-1", Role: tenant.RoleAdmin}, domain.ErrNotFound},
		{"unknown user", "t-a", tenant.GrantRequest{UserID: "u-x", Role: tenant.RoleAdmin}, domain.ErrNotFound},
		{"inactive tenant", "t-off", tenant.GrantRequest{UserID: "u-1", Role: tenant.RoleAdmin}, domain.ErrTenantInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dir.Grant(ctx, tt.tenantID, tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	dir, store, _ := newDirectoryFixture()
	store.addMember("t-a", "u-1", tenant.RoleAdmin, true)
	store.addMember("t-a", "u-2", tenant.RoleTechnician, true)
	ctx := context.Background()

	if _, err := dir.Resolve(ctx, "u-2", "t-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := dir.Revoke(ctx, "t-a", "u-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := dir.Resolve(ctx, "u-2", "t-a"); !errors.Is(err, domain.ErrNoActiveMembership) {
		t.Fatalf("expected ErrNoActiveMembership after revoke, got %v", err)
	}

	if err := dir.Revoke(ctx, "t-a", "u-1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected last admin to be protected, got %v", err)
	}
}

func TestRevokeDuringInFlightLookupLeavesNoStaleEntry(t *testing.T) {
	dir, store, c := newDirectoryFixture()
	store.addMember("t-a", "u-1", tenant.RoleAdmin, true)
	store.addMember("t-a", "u-2", tenant.RoleTechnician, true)
	ctx := context.Background()

	snapshotted := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	store.afterListByUser = func() {
		once.Do(func() {
			close(snapshotted)
			<-release
		})
	}

	done := make(chan error, 1)
	go func() {
		_, err := dir.MembershipsFor(ctx, "u-2")
		done <- err
	}()

	<-snapshotted
	if err := dir.Revoke(ctx, "t-a", "u-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight lookup: %v", err)
	}

	if _, ok, _ := c.Get(ctx, cache.MembershipKey("u-2")); ok {
		t.Fatal("expected the pre-revoke snapshot to stay out of the cache")
	}
	if _, err := dir.Resolve(ctx, "u-2", ""); !errors.Is(err, domain.ErrNoActiveMembership) {
		t.Fatalf("expected ErrNoActiveMembership after revoke, got %v", err)
	}
}

func TestChangeRole(t *testing.T) {
	dir, store, _ := newDirectoryFixture()
	store.addMember("t-a", "u-1", tenant.RoleAdmin, true)
	store.addMember("t-a", "u-2", tenant.RoleTechnician, true)
	ctx := context.Background()

	if err := dir.ChangeRole(ctx, "t-a", "u-2", "owner"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := dir.ChangeRole(ctx, "t-a", "u-1", tenant.RoleFinance); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected last admin demotion to fail, got %v", err)
	}
	if err := dir.ChangeRole(ctx, "t-a", "u-2", tenant.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := dir.ChangeRole(ctx, "t-a", "u-1", tenant.RoleFinance); err != nil {
		t.Fatalf("demote with another admin present: %v", err)
	}

	m, err := dir.Resolve(ctx, "u-1", "t-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Role != tenant.RoleFinance {
		t.Fatalf("expected role finance, got %s", m.Role)
	}
}

func TestListenForChangesEvictsLocalEntry(t *testing.T) {
	dir, store, c := newDirectoryFixture()
	q := newFakeQueue()
	dir.SetQueue(q)
	store.addMember("t-a", "u-1", tenant.RoleAdmin, true)
	ctx := context.Background()

	cancel, err := dir.ListenForChanges(ctx)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	if _, err := dir.MembershipsFor(ctx, "u-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another process reporting a change.
	if err := q.Publish(ctx, messagequeue.SubjectMembershipChanged, []byte("u-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if _, ok, _ := c.Get(ctx, cache.MembershipKey("u-1")); ok {
		t.Fatal("expected local entry to be evicted")
	}
	if len(c.evicted) != 1 || c.evicted[0] != cache.MembershipKey("u-1") {
		t.Fatalf("unexpected evictions: %v", c.evicted)
	}
}

func TestListenForChangesWithoutQueue(t *testing.T) {
	dir, _, _ := newDirectoryFixture()
	cancel, err := dir.ListenForChanges(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
}

package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/tenant"
	"github.com/Strob0t/LabCore/internal/domain/user"
	"github.com/Strob0t/LabCore/internal/port/cache"
	"github.com/Strob0t/LabCore/internal/port/database"
	"github.com/Strob0t/LabCore/internal/port/messagequeue"
)

var _ database.Store = (*fakeStore)(nil)

// fakeStore is an in-memory database.Store.
type fakeStore struct {
	mu          sync.Mutex
	tenants     map[string]*tenant.Tenant
	users       map[string]*user.User
	memberships map[[2]string]*tenant.Membership

	listByUserCalls atomic.Int32
	listByUserDelay time.Duration
	listByUserErr   error
	// afterListByUser runs once the membership snapshot is taken, before it
	// is returned.
	afterListByUser func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:     map[string]*tenant.Tenant{},
		users:       map[string]*user.User{},
		memberships: map[[2]string]*tenant.Membership{},
	}
}

func (f *fakeStore) addTenant(id, slug string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[id] = &tenant.Tenant{ID: id, Name: slug, Slug: slug, Active: active}
}

func (f *fakeStore) addUser(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &user.User{ID: id, Email: id + "@lab.test", Name: id}
}

func (f *fakeStore) addMember(tenantID, userID string, role tenant.Role, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships[[2]string{tenantID, userID}] = &tenant.Membership{TenantID: tenantID, UserID: userID, Role: role, Active: active}
}

func (f *fakeStore) CreateTenant(_ context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.Slug == req.Slug {
			return nil, domain.ErrConflict
		}
	}
	t := &tenant.Tenant{ID: "t-" + req.Slug, Name: req.Name, Slug: req.Slug, Settings: req.Settings, Active: true}
	f.tenants[t.ID] = t
	cp := *t
	return &cp, nil
}

func (f *fakeStore) OnboardTenant(ctx context.Context, req tenant.CreateRequest, adminUserID string) (*tenant.Tenant, *tenant.Membership, error) {
	t, err := f.CreateTenant(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	m, err := f.UpsertMembership(ctx, t.ID, adminUserID, tenant.RoleAdmin)
	if err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

func (f *fakeStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) GetTenantBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) ListTenants(_ context.Context, includeInactive bool) ([]tenant.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tenant.Tenant
	for _, t := range f.tenants {
		if t.Active || includeInactive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.tenants[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *t
	cp.Slug = cur.Slug
	f.tenants[t.ID] = &cp
	return nil
}

func (f *fakeStore) SetTenantActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Active = active
	return nil
}

func (f *fakeStore) CreateUser(_ context.Context, req user.RegisterRequest) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == req.Email {
			return nil, domain.ErrConflict
		}
	}
	u := &user.User{ID: "u-" + req.Email, Email: req.Email, Name: req.Name, ExternalAuthID: req.ExternalAuthID}
	f.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) findUser(match func(*user.User) bool) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	return f.findUser(func(u *user.User) bool { return u.Email == email })
}

func (f *fakeStore) GetUserByExternalAuthID(_ context.Context, externalID string) (*user.User, error) {
	return f.findUser(func(u *user.User) bool { return externalID != "" && u.ExternalAuthID == externalID })
}

func (f *fakeStore) UpsertMembership(_ context.Context, tenantID, userID string, role tenant.Role) (*tenant.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &tenant.Membership{TenantID: tenantID, UserID: userID, Role: role, Active: true}
	f.memberships[[2]string{tenantID, userID}] = m
	out := f.decorate(*m)
	return &out, nil
}

// decorate fills the tenant columns the real store joins in. Callers hold mu.
func (f *fakeStore) decorate(m tenant.Membership) tenant.Membership {
	if t, ok := f.tenants[m.TenantID]; ok {
		m.TenantSlug = t.Slug
		m.TenantActive = t.Active
	}
	return m
}

func (f *fakeStore) GetMembership(_ context.Context, tenantID, userID string) (*tenant.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[[2]string{tenantID, userID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := f.decorate(*m)
	return &out, nil
}

func (f *fakeStore) ListMembershipsByUser(_ context.Context, userID string) ([]tenant.Membership, error) {
	f.listByUserCalls.Add(1)
	if f.listByUserDelay > 0 {
		time.Sleep(f.listByUserDelay)
	}
	if f.listByUserErr != nil {
		return nil, f.listByUserErr
	}
	f.mu.Lock()
	out := []tenant.Membership{}
	for k, m := range f.memberships {
		if k[1] == userID {
			out = append(out, f.decorate(*m))
		}
	}
	f.mu.Unlock()
	if f.afterListByUser != nil {
		f.afterListByUser()
	}
	return out, nil
}

func (f *fakeStore) ListMembershipsByTenant(_ context.Context, tenantID string) ([]tenant.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []tenant.Membership{}
	for k, m := range f.memberships {
		if k[0] == tenantID {
			out = append(out, f.decorate(*m))
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateMembershipRole(_ context.Context, tenantID, userID string, role tenant.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[[2]string{tenantID, userID}]
	if !ok {
		return domain.ErrNotFound
	}
	m.Role = role
	return nil
}

func (f *fakeStore) SetMembershipActive(_ context.Context, tenantID, userID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[[2]string{tenantID, userID}]
	if !ok {
		return domain.ErrNotFound
	}
	m.Active = active
	return nil
}

var (
	_ cache.Cache   = (*memCache)(nil)
	_ cache.Evicter = (*memCache)(nil)
)

// memCache is a map-backed cache that counts local evictions.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	evicted []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) EvictLocal(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.evicted = append(c.evicted, key)
	return nil
}

var _ messagequeue.Queue = (*fakeQueue)(nil)

// fakeQueue delivers published messages synchronously to subscribers.
type fakeQueue struct {
	mu        sync.Mutex
	published []string
	handlers  map[string][]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{handlers: map[string][]messagequeue.Handler{}}
}

func (q *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	q.published = append(q.published, subject+":"+string(data))
	hs := append([]messagequeue.Handler(nil), q.handlers[subject]...)
	q.mu.Unlock()
	for _, h := range hs {
		_ = h(ctx, subject, data)
	}
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = append(q.handlers[subject], h)
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

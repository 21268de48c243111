package service

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/Strob0t/LabCore/internal/adapter/postgres"
	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/client"
)

// ClientRepository is the tenant-scoped persistence the ClientService needs.
// *postgres.Repository[client.Client] satisfies it.
type ClientRepository interface {
	Get(ctx context.Context, id string) (*client.Client, error)
	List(ctx context.Context, filter sq.Sqlizer, page postgres.Page) ([]client.Client, error)
	Count(ctx context.Context, filter sq.Sqlizer) (int64, error)
	Create(ctx context.Context, payload postgres.Record) (*client.Client, error)
	Update(ctx context.Context, id string, set postgres.Record) (*client.Client, error)
	Delete(ctx context.Context, id string) error
}

var _ ClientRepository = (*postgres.Repository[client.Client])(nil)

// ClientFilter narrows List and Count.
type ClientFilter struct {
	Search string
	Active *bool
	Limit  uint64
	Offset uint64
}

func (f ClientFilter) where() sq.Sqlizer {
	and := sq.And{}
	if s := strings.TrimSpace(f.Search); s != "" {
		and = append(and, sq.ILike{"name": "%" + s + "%"})
	}
	if f.Active != nil {
		and = append(and, sq.Eq{"active": *f.Active})
	}
	return and
}

// ClientService manages a lab's customers. It carries no tenant handling of
// its own; the repository scopes every call to the request's tenant.
type ClientService struct {
	repo ClientRepository
}

// NewClientService creates a new ClientService.
func NewClientService(repo ClientRepository) *ClientService {
	return &ClientService{repo: repo}
}

// Create validates and stores a new client in the caller's tenant.
func (s *ClientService) Create(ctx context.Context, req client.CreateRequest) (*client.Client, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return s.repo.Create(ctx, postgres.Record{
		"name":  req.Name,
		"email": req.Email,
		"phone": req.Phone,
	})
}

// Get returns a client by ID.
func (s *ClientService) Get(ctx context.Context, id string) (*client.Client, error) {
	return s.repo.Get(ctx, id)
}

// List returns clients ordered by name.
func (s *ClientService) List(ctx context.Context, f ClientFilter) ([]client.Client, error) {
	return s.repo.List(ctx, f.where(), postgres.Page{
		Limit:   f.Limit,
		Offset:  f.Offset,
		OrderBy: []string{"name ASC", "id ASC"},
	})
}

// Count returns how many clients match f.
func (s *ClientService) Count(ctx context.Context, f ClientFilter) (int64, error) {
	return s.repo.Count(ctx, f.where())
}

// Update applies the fields set in req.
func (s *ClientService) Update(ctx context.Context, id string, req client.UpdateRequest) (*client.Client, error) {
	set := req.Changes()
	if name, ok := set["name"]; ok && name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", domain.ErrValidation)
	}
	if len(set) == 0 {
		return s.repo.Get(ctx, id)
	}
	return s.repo.Update(ctx, id, set)
}

// Delete removes a client.
func (s *ClientService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

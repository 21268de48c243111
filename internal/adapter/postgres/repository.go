package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/LabCore/internal/domain/entity"
)

// Repository is a typed view of one entity over a Gateway. Rows are scanned
// into T by column name using `db` struct tags.
type Repository[T any] struct {
	gw     *Gateway
	entity entity.Entity
}

// NewRepository returns a Repository for e.
func NewRepository[T any](gw *Gateway, e entity.Entity) *Repository[T] {
	return &Repository[T]{gw: gw, entity: e}
}

// Entity returns the entity the repository serves.
func (r *Repository[T]) Entity() entity.Entity { return r.entity }

func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	v, err := findOne(ctx, r.gw, OpFindByID, r.entity, sq.Eq{idColumn: id}, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository[T]) FindOne(ctx context.Context, filter sq.Sqlizer) (*T, error) {
	v, err := findOne(ctx, r.gw, OpFindOne, r.entity, filter, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository[T]) List(ctx context.Context, filter sq.Sqlizer, page Page) ([]T, error) {
	return findMany(ctx, r.gw, r.entity, filter, page, pgx.RowToStructByNameLax[T])
}

func (r *Repository[T]) Count(ctx context.Context, filter sq.Sqlizer) (int64, error) {
	return r.gw.Count(ctx, r.entity, filter)
}

func (r *Repository[T]) Create(ctx context.Context, payload Record) (*T, error) {
	v, err := createRow(ctx, r.gw, r.entity, payload, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository[T]) Update(ctx context.Context, id string, set Record) (*T, error) {
	v, err := updateByID(ctx, r.gw, r.entity, id, set, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	return r.gw.DeleteByID(ctx, r.entity, id)
}

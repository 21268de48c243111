package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	lcotel "github.com/Strob0t/LabCore/internal/adapter/otel"
	"github.com/Strob0t/LabCore/internal/domain"
	"github.com/Strob0t/LabCore/internal/domain/entity"
	"github.com/Strob0t/LabCore/internal/logger"
	"github.com/Strob0t/LabCore/internal/port/audit"
	"github.com/Strob0t/LabCore/internal/tenancy"
)

const (
	tenantColumn = "tenant_id"
	idColumn     = "id"

	// tenantSetting is the session variable the row-level security policies
	// compare tenant_id against.
	tenantSetting = "app.current_tenant"
)

// declareTenantSQL binds the running transaction to one tenant. The setting
// is transaction-local, so a pooled connection never carries it over.
const declareTenantSQL = "SELECT set_config('" + tenantSetting + "', $1, true)"

// Gateway operation names, used in errors, logs, spans and audit events.
const (
	OpFindOne    = "find_one"
	OpFindByID   = "find_by_id"
	OpFindMany   = "find_many"
	OpCount      = "count"
	OpAggregate  = "aggregate"
	OpCreate     = "create"
	OpUpdateByID = "update_by_id"
	OpUpdateMany = "update_many"
	OpDeleteByID = "delete_by_id"
	OpDeleteMany = "delete_many"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Record is one row or payload keyed by column name.
type Record map[string]any

// Gateway is the only path from business code to tenant-scoped rows. Every
// operation resolves the entity's scope, merges the caller's tenant into the
// filter or payload, and runs inside a transaction that declares the tenant
// to the row-level security policies.
type Gateway struct {
	db      DB
	log     *slog.Logger
	audit   audit.Sink
	metrics *lcotel.Metrics
	now     func() time.Time

	// scopeFilters is only switched off by tests that exercise the
	// row-level security policies on their own.
	scopeFilters bool
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the logger used for isolation failures.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.log = l }
}

// WithAuditSink sets where isolation failures are reported.
func WithAuditSink(s audit.Sink) GatewayOption {
	return func(g *Gateway) { g.audit = s }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *lcotel.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a Gateway over db.
func NewGateway(db DB, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		db:           db,
		log:          slog.Default(),
		audit:        audit.Discard{},
		now:          time.Now,
		scopeFilters: true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FindOne returns the first row of e matching filter.
func (g *Gateway) FindOne(ctx context.Context, e entity.Entity, filter sq.Sqlizer) (Record, error) {
	return findOne(ctx, g, OpFindOne, e, filter, rowToRecord)
}

// FindByID returns the row of e with the given id. The lookup is always
// qualified by the caller's tenant for tenant-scoped entities.
func (g *Gateway) FindByID(ctx context.Context, e entity.Entity, id string) (Record, error) {
	return findOne(ctx, g, OpFindByID, e, sq.Eq{idColumn: id}, rowToRecord)
}

// FindMany returns all rows of e matching filter, bounded by page.
func (g *Gateway) FindMany(ctx context.Context, e entity.Entity, filter sq.Sqlizer, page Page) ([]Record, error) {
	return findMany(ctx, g, e, filter, page, rowToRecord)
}

// Count returns the number of rows of e matching filter.
func (g *Gateway) Count(ctx context.Context, e entity.Entity, filter sq.Sqlizer) (int64, error) {
	var n int64
	err := g.inScope(ctx, OpCount, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		b := psql.Select("COUNT(*)").From(e.Table())
		if where := g.scopedWhere(e, filter, tenantID); where != nil {
			b = b.Where(where)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, query, args...).Scan(&n)
	})
	return n, err
}

// Aggregate computes agg over the rows of e matching filter. Empty inputs
// yield 0.
func (g *Gateway) Aggregate(ctx context.Context, e entity.Entity, agg Aggregation, filter sq.Sqlizer) (float64, error) {
	expr, err := agg.expr()
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", OpAggregate, e, err)
	}

	var v float64
	err = g.inScope(ctx, OpAggregate, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		b := psql.Select(expr).From(e.Table())
		if where := g.scopedWhere(e, filter, tenantID); where != nil {
			b = b.Where(where)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, query, args...).Scan(&v)
	})
	return v, err
}

// Create inserts payload as a new row of e and returns the stored row. For
// tenant-scoped entities tenant_id is always the caller's tenant.
func (g *Gateway) Create(ctx context.Context, e entity.Entity, payload Record) (Record, error) {
	return createRow(ctx, g, e, payload, rowToRecord)
}

// UpdateByID applies set to the row of e with the given id and returns the
// updated row.
func (g *Gateway) UpdateByID(ctx context.Context, e entity.Entity, id string, set Record) (Record, error) {
	return updateByID(ctx, g, e, id, set, rowToRecord)
}

// UpdateMany applies set to every row of e matching filter and returns the
// number of rows changed.
func (g *Gateway) UpdateMany(ctx context.Context, e entity.Entity, filter sq.Sqlizer, set Record) (int64, error) {
	var n int64
	err := g.inScope(ctx, OpUpdateMany, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		values, err := g.updatePayload(ctx, OpUpdateMany, e, set)
		if err != nil {
			return err
		}
		b := psql.Update(e.Table()).SetMap(values)
		if where := g.scopedWhere(e, filter, tenantID); where != nil {
			b = b.Where(where)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// DeleteByID removes the row of e with the given id.
func (g *Gateway) DeleteByID(ctx context.Context, e entity.Entity, id string) error {
	return g.inScope(ctx, OpDeleteByID, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		query, args, err := psql.Delete(e.Table()).
			Where(g.scopedWhere(e, sq.Eq{idColumn: id}, tenantID)).
			ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

// DeleteMany removes every row of e matching filter and returns the number of
// rows removed.
func (g *Gateway) DeleteMany(ctx context.Context, e entity.Entity, filter sq.Sqlizer) (int64, error) {
	var n int64
	err := g.inScope(ctx, OpDeleteMany, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		b := psql.Delete(e.Table())
		if where := g.scopedWhere(e, filter, tenantID); where != nil {
			b = b.Where(where)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// --- generic row helpers shared with Repository ---

// rowToRecord collects a row into a Record. uuid columns decode to
// [16]byte and are turned into their text form, so a Record value can be
// passed straight back as a filter or payload.
func rowToRecord(row pgx.CollectableRow) (Record, error) {
	m, err := pgx.RowToMap(row)
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		if b, ok := v.([16]byte); ok {
			m[k] = uuid.UUID(b).String()
		}
	}
	return Record(m), nil
}

func findOne[T any](ctx context.Context, g *Gateway, op string, e entity.Entity, filter sq.Sqlizer, scan pgx.RowToFunc[T]) (T, error) {
	var out T
	err := g.inScope(ctx, op, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		b := psql.Select("*").From(e.Table()).Limit(1)
		if where := g.scopedWhere(e, filter, tenantID); where != nil {
			b = b.Where(where)
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scan)
		return err
	})
	return out, err
}

func findMany[T any](ctx context.Context, g *Gateway, e entity.Entity, filter sq.Sqlizer, page Page, scan pgx.RowToFunc[T]) ([]T, error) {
	var out []T
	err := g.inScope(ctx, OpFindMany, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		b := psql.Select("*").From(e.Table())
		if where := g.scopedWhere(e, filter, tenantID); where != nil {
			b = b.Where(where)
		}
		b, err := page.apply(b)
		if err != nil {
			return err
		}
		query, args, err := b.ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scan)
		return err
	})
	return orEmpty(out), err
}

func createRow[T any](ctx context.Context, g *Gateway, e entity.Entity, payload Record, scan pgx.RowToFunc[T]) (T, error) {
	var out T
	err := g.inScope(ctx, OpCreate, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		values, err := g.createPayload(ctx, e, payload, tenantID)
		if err != nil {
			return err
		}
		query, args, err := psql.Insert(e.Table()).
			SetMap(values).
			Suffix("RETURNING *").
			ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scan)
		return err
	})
	return out, err
}

func updateByID[T any](ctx context.Context, g *Gateway, e entity.Entity, id string, set Record, scan pgx.RowToFunc[T]) (T, error) {
	var out T
	err := g.inScope(ctx, OpUpdateByID, e, func(ctx context.Context, tx pgx.Tx, tenantID string) error {
		values, err := g.updatePayload(ctx, OpUpdateByID, e, set)
		if err != nil {
			return err
		}
		query, args, err := psql.Update(e.Table()).
			SetMap(values).
			Where(g.scopedWhere(e, sq.Eq{idColumn: id}, tenantID)).
			Suffix("RETURNING *").
			ToSql()
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scan)
		return err
	})
	return out, err
}

// --- scoping ---

// inScope resolves the scope of e, then runs fn in a transaction that has
// declared the caller's tenant. Isolation failures abort before the database
// is touched.
func (g *Gateway) inScope(ctx context.Context, op string, e entity.Entity, fn func(ctx context.Context, tx pgx.Tx, tenantID string) error) (err error) {
	tenantID, err := g.resolve(ctx, op, e)
	if err != nil {
		return err
	}

	ctx, span := lcotel.StartScopedOpSpan(ctx, op, e.Name(), e.Scope().String(), tenantID)
	defer func() {
		lcotel.EndSpan(span, err)
		g.metrics.RecordOp(ctx, op, e.Name(), err)
	}()

	tx, err := g.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s %s: begin: %w", op, e, err)
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, declareTenantSQL, tenantID); err != nil {
		return fmt.Errorf("%s %s: declare tenant: %w", op, e, err)
	}
	if err = fn(ctx, tx, tenantID); err != nil {
		return g.mapErr(ctx, op, e, tenantID, err)
	}

	finished = true
	if err = tx.Commit(ctx); err != nil {
		return g.mapErr(ctx, op, e, tenantID, err)
	}
	return nil
}

// resolve returns the tenant to declare for one operation on e. System-scoped
// entities run under the caller's tenant when there is one and under no
// tenant otherwise.
func (g *Gateway) resolve(ctx context.Context, op string, e entity.Entity) (string, error) {
	if !e.Valid() {
		return "", g.deny(ctx, op, e, "", domain.ErrUnclassifiedEntity)
	}
	tenantID, err := tenancy.Current(ctx)
	if e.IsSystemScoped() {
		return tenantID, nil
	}
	if err != nil {
		return "", g.deny(ctx, op, e, "", domain.ErrMissingTenantContext)
	}
	return tenantID, nil
}

// scopedWhere returns filter AND tenant_id = tenantID for tenant-scoped
// entities. A tenant_id equality supplied by the caller is discarded first,
// so the injected term always decides.
func (g *Gateway) scopedWhere(e entity.Entity, filter sq.Sqlizer, tenantID string) sq.Sqlizer {
	if e.IsSystemScoped() || !g.scopeFilters {
		return nonEmpty(filter)
	}
	guard := sq.Eq{tenantColumn: tenantID}
	filter = withoutTenantTerm(filter)
	if filter == nil {
		return guard
	}
	return sq.And{filter, guard}
}

// withoutTenantTerm drops tenant_id from top-level equality maps, including
// those nested in conjunctions. Other predicates are kept as they are; they
// are still ANDed with the tenant guard.
func withoutTenantTerm(filter sq.Sqlizer) sq.Sqlizer {
	switch f := filter.(type) {
	case nil:
		return nil
	case sq.Eq:
		if len(f) == 0 {
			return nil
		}
		if _, ok := f[tenantColumn]; !ok {
			return f
		}
		clean := make(sq.Eq, len(f))
		for k, v := range f {
			if k != tenantColumn {
				clean[k] = v
			}
		}
		if len(clean) == 0 {
			return nil
		}
		return clean
	case sq.And:
		out := make(sq.And, 0, len(f))
		for _, part := range f {
			if p := withoutTenantTerm(part); p != nil {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return f
	}
}

func nonEmpty(filter sq.Sqlizer) sq.Sqlizer {
	switch f := filter.(type) {
	case nil:
		return nil
	case sq.Eq:
		if len(f) == 0 {
			return nil
		}
	case sq.And:
		if len(f) == 0 {
			return nil
		}
	}
	return filter
}

// createPayload validates column names and stamps the tenant.
func (g *Gateway) createPayload(ctx context.Context, e entity.Entity, payload Record, tenantID string) (map[string]any, error) {
	values := make(map[string]any, len(payload)+1)
	for col, v := range payload {
		if !validIdent(col) {
			return nil, fmt.Errorf("%w: invalid column %q", domain.ErrValidation, col)
		}
		values[col] = v
	}
	if e.IsSystemScoped() {
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: empty payload", domain.ErrValidation)
		}
		return values, nil
	}
	if v, ok := values[tenantColumn]; ok && fmt.Sprint(v) != tenantID {
		g.log.WarnContext(ctx, "caller-supplied tenant_id replaced on create", "entity", e.Name())
	}
	values[tenantColumn] = tenantID
	return values, nil
}

// updatePayload validates column names and removes the columns that never
// change after creation.
func (g *Gateway) updatePayload(ctx context.Context, op string, e entity.Entity, set Record) (map[string]any, error) {
	values := make(map[string]any, len(set))
	for col, v := range set {
		if !validIdent(col) {
			return nil, fmt.Errorf("%w: invalid column %q", domain.ErrValidation, col)
		}
		switch col {
		case tenantColumn:
			if !e.IsSystemScoped() {
				g.log.WarnContext(ctx, "tenant_id dropped from update", "op", op, "entity", e.Name())
				continue
			}
		case idColumn:
			continue
		}
		values[col] = v
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no updatable fields", domain.ErrValidation)
	}
	return values, nil
}

// mapErr converts a failure inside the transaction into the error returned to
// the caller. Policy rejections become not-found-shaped isolation errors.
func (g *Gateway) mapErr(ctx context.Context, op string, e entity.Entity, tenantID string, err error) error {
	switch {
	case isPolicyViolation(err):
		return g.deny(ctx, op, e, tenantID, domain.ErrCrossTenantAccessDenied)
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s %s: %w", op, e, domain.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, e, mapPgError(err))
}

// deny logs, counts and reports one isolation failure and returns the error
// for the caller. Only the caller's own tenant is recorded.
func (g *Gateway) deny(ctx context.Context, op string, e entity.Entity, tenantID string, reason error) error {
	var err error
	if errors.Is(reason, domain.ErrCrossTenantAccessDenied) {
		err = domain.NewCrossTenantError(op, e.Name())
	} else {
		err = &domain.IsolationError{Op: op, Entity: e.Name(), Err: reason}
	}

	g.log.WarnContext(ctx, "tenant isolation denied operation",
		"op", op,
		"entity", e.Name(),
		"reason", reason.Error(),
	)
	g.metrics.RecordDenial(ctx, op, e.Name(), reason.Error())
	g.audit.Record(ctx, audit.Event{
		Op:        op,
		Entity:    e.Name(),
		Reason:    reason.Error(),
		TenantID:  tenantID,
		RequestID: logger.RequestID(ctx),
		At:        g.now().UTC(),
	})
	return err
}

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// DriverPgx is the name of the hand-built SQL driver.
const DriverPgx = "pgx"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PgxDriver issues squirrel-built SQL over a pgx pool.
type PgxDriver struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ crud.Driver = (*PgxDriver)(nil)

// NewPgxDriver wraps pool.
func NewPgxDriver(pool *pgxpool.Pool, logger *zap.Logger) (*PgxDriver, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgxDriver{pool: pool, logger: logger.Named("pgx-driver")}, nil
}

func (d *PgxDriver) Name() string { return DriverPgx }

// Pool returns the underlying pool for health checks and metrics.
func (d *PgxDriver) Pool() *pgxpool.Pool { return d.pool }

func (d *PgxDriver) conn(ctx context.Context) querier {
	if tx, ok := pgxTxFrom(ctx); ok {
		return tx
	}
	return d.pool
}

// EnsureSchema creates every table first, then the foreign keys.
func (d *PgxDriver) EnsureSchema(ctx context.Context, registry *schema.Registry) error {
	return d.WithTx(ctx, func(ctx context.Context) error {
		var statements []string
		for _, e := range registry.Entities() {
			statements = append(statements, BuildDDL(e)...)
		}
		for _, e := range registry.Entities() {
			statements = append(statements, BuildForeignKeys(e, registry)...)
		}
		for _, stmt := range statements {
			if _, err := d.conn(ctx).Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply ddl: %w", err)
			}
		}
		d.logger.Info("schema ensured", zap.Int("entities", len(registry.Entities())), zap.Int("statements", len(statements)))
		return nil
	})
}

func (d *PgxDriver) Find(ctx context.Context, q crud.Query) ([]schema.Record, error) {
	cols := make([]string, len(q.Entity.Columns))
	for i, c := range q.Entity.Columns {
		cols[i] = quoteIdent(c.Name)
	}

	where, err := sqlFilter(q.Where)
	if err != nil {
		return nil, err
	}

	stmt := psql.Select(cols...).From(quoteIdent(q.Entity.Table)).Where(where)
	for _, o := range q.Order {
		if o.Desc {
			stmt = stmt.OrderBy(quoteIdent(o.Column) + " DESC NULLS FIRST")
		} else {
			stmt = stmt.OrderBy(quoteIdent(o.Column) + " ASC NULLS LAST")
		}
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		stmt = stmt.Offset(uint64(q.Offset))
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := d.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	records := make([]schema.Record, len(maps))
	for i, m := range maps {
		records[i] = schema.Record(m)
	}
	return records, nil
}

func (d *PgxDriver) Count(ctx context.Context, entity *schema.Entity, where crud.Filter) (int64, error) {
	cond, err := sqlFilter(where)
	if err != nil {
		return 0, err
	}
	query, args, err := psql.Select("COUNT(*)").From(quoteIdent(entity.Table)).Where(cond).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int64
	if err := d.conn(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *PgxDriver) Insert(ctx context.Context, entity *schema.Entity, rec schema.Record) error {
	cols := make([]string, 0, len(entity.Columns))
	vals := make([]any, 0, len(entity.Columns))
	for _, c := range entity.Columns {
		cols = append(cols, quoteIdent(c.Name))
		vals = append(vals, sqlArg(rec[c.Name]))
	}

	query, args, err := psql.Insert(quoteIdent(entity.Table)).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = d.conn(ctx).Exec(ctx, query, args...)
	return err
}

func (d *PgxDriver) Update(ctx context.Context, entity *schema.Entity, where crud.Filter, values schema.Record) (int64, error) {
	cond, err := sqlFilter(where)
	if err != nil {
		return 0, err
	}
	set := make(map[string]any, len(values))
	for k, v := range values {
		set[quoteIdent(k)] = sqlArg(v)
	}

	query, args, err := psql.Update(quoteIdent(entity.Table)).SetMap(set).Where(cond).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	tag, err := d.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d *PgxDriver) Delete(ctx context.Context, entity *schema.Entity, where crud.Filter) (int64, error) {
	cond, err := sqlFilter(where)
	if err != nil {
		return 0, err
	}
	query, args, err := psql.Delete(quoteIdent(entity.Table)).Where(cond).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := d.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d *PgxDriver) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return runInTx(ctx, d.pool, fn)
}

func (d *PgxDriver) TranslateError(err error) error {
	return translatePgError(err)
}

// sqlFilter renders a filter as a squirrel conjunction. Scalars go through sq.Expr rather than sq.Eq
// because uuid.UUID and json.RawMessage are arrays/slices that sq.Eq would expand into IN lists.
func sqlFilter(f crud.Filter) (sq.And, error) {
	and := make(sq.And, 0, len(f))
	for _, c := range f {
		part, err := sqlCondition(c)
		if err != nil {
			return nil, err
		}
		and = append(and, part)
	}
	return and, nil
}

func sqlCondition(c crud.Condition) (sq.Sqlizer, error) {
	col := quoteIdent(c.Column)
	switch c.Op {
	case crud.OpEq:
		return sq.Expr(col+" = ?", sqlArg(c.Value)), nil
	case crud.OpNeq:
		return sq.Expr(col+" <> ?", sqlArg(c.Value)), nil
	case crud.OpGt:
		return sq.Expr(col+" > ?", sqlArg(c.Value)), nil
	case crud.OpGte:
		return sq.Expr(col+" >= ?", sqlArg(c.Value)), nil
	case crud.OpLt:
		return sq.Expr(col+" < ?", sqlArg(c.Value)), nil
	case crud.OpLte:
		return sq.Expr(col+" <= ?", sqlArg(c.Value)), nil
	case crud.OpLike:
		return sq.Expr(col+" LIKE ?", c.Value), nil
	case crud.OpIsNull:
		return sq.Expr(col + " IS NULL"), nil
	case crud.OpNotNull:
		return sq.Expr(col + " IS NOT NULL"), nil
	case crud.OpIn:
		args := make([]any, len(c.Values))
		for i, v := range c.Values {
			args[i] = sqlArg(v)
		}
		return sq.Expr(col+" IN ("+sq.Placeholders(len(args))+")", args...), nil
	case crud.OpInSubquery:
		if c.Sub == nil {
			return nil, fmt.Errorf("condition on %s: missing subquery", c.Column)
		}
		inner, err := sqlFilter(c.Sub.Where)
		if err != nil {
			return nil, err
		}
		// Built with ? placeholders; the outer statement renumbers them.
		subQuery, subArgs, err := sq.Select(quoteIdent(c.Sub.Column)).
			From(quoteIdent(c.Sub.Entity.Table)).
			Where(inner).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build subquery: %w", err)
		}
		return sq.Expr(col+" IN ("+subQuery+")", subArgs...), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", c.Op)
}

// sqlArg passes JSON documents as text so that pgx encodes them for jsonb parameters instead of bytea.
func sqlArg(v any) any {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	return v
}

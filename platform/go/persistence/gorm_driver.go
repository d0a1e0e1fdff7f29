package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// DriverGorm is the name of the ORM-backed driver.
const DriverGorm = "gorm"

// GormDriver runs the same statements through gorm. Rows are handled as maps against explicit tables,
// so no gorm models or AutoMigrate are involved; the entity metadata stays the single source of truth.
type GormDriver struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ crud.Driver = (*GormDriver)(nil)

// NewGormDriver opens gorm on top of the shared pgx pool.
func NewGormDriver(pool *pgxpool.Pool, logger *zap.Logger) (*GormDriver, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 newGormLogger(logger.Named("gorm")),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	return &GormDriver{db: db, sqlDB: sqlDB, pool: pool, logger: logger.Named("gorm-driver")}, nil
}

// Close releases the database/sql handle; the underlying pool is owned by the caller.
func (d *GormDriver) Close() error {
	return d.sqlDB.Close()
}

func (d *GormDriver) Name() string { return DriverGorm }

// Pool returns the pgx pool gorm runs on.
func (d *GormDriver) Pool() *pgxpool.Pool { return d.pool }

type gormTxKey struct{}

func (d *GormDriver) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(gormTxKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return d.db.WithContext(ctx)
}

func (d *GormDriver) EnsureSchema(ctx context.Context, registry *schema.Registry) error {
	return d.WithTx(ctx, func(ctx context.Context) error {
		db := d.conn(ctx)
		for _, e := range registry.Entities() {
			if !db.Migrator().HasTable(e.Table) {
				d.logger.Info("creating table", zap.String("table", e.Table))
			}
			for _, stmt := range BuildDDL(e) {
				if err := db.Exec(stmt).Error; err != nil {
					return fmt.Errorf("apply ddl: %w", err)
				}
			}
		}
		for _, e := range registry.Entities() {
			for _, stmt := range BuildForeignKeys(e, registry) {
				if err := db.Exec(stmt).Error; err != nil {
					return fmt.Errorf("apply foreign keys: %w", err)
				}
			}
		}
		return nil
	})
}

func (d *GormDriver) Find(ctx context.Context, q crud.Query) ([]schema.Record, error) {
	db := d.conn(ctx)
	exprs, err := d.gormFilter(db, q.Where)
	if err != nil {
		return nil, err
	}

	stmt := db.Table(q.Entity.Table).Select(q.Entity.ColumnNames())
	if len(exprs) > 0 {
		stmt = stmt.Clauses(clause.Where{Exprs: exprs})
	}
	if len(q.Order) > 0 {
		// PostgreSQL defaults already place NULLs last ascending and first descending.
		columns := make([]clause.OrderByColumn, len(q.Order))
		for i, o := range q.Order {
			columns[i] = clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc}
		}
		stmt = stmt.Clauses(clause.OrderBy{Columns: columns})
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	if q.Offset > 0 {
		stmt = stmt.Offset(q.Offset)
	}

	var rows []map[string]any
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]schema.Record, len(rows))
	for i, row := range rows {
		records[i] = schema.Record(row)
	}
	return records, nil
}

func (d *GormDriver) Count(ctx context.Context, entity *schema.Entity, where crud.Filter) (int64, error) {
	db := d.conn(ctx)
	exprs, err := d.gormFilter(db, where)
	if err != nil {
		return 0, err
	}

	stmt := db.Table(entity.Table)
	if len(exprs) > 0 {
		stmt = stmt.Clauses(clause.Where{Exprs: exprs})
	}
	var n int64
	if err := stmt.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (d *GormDriver) Insert(ctx context.Context, entity *schema.Entity, rec schema.Record) error {
	values := make(map[string]any, len(entity.Columns))
	for _, c := range entity.Columns {
		values[c.Name] = gormArg(rec[c.Name])
	}
	return d.conn(ctx).Table(entity.Table).Create(values).Error
}

func (d *GormDriver) Update(ctx context.Context, entity *schema.Entity, where crud.Filter, values schema.Record) (int64, error) {
	db := d.conn(ctx)
	exprs, err := d.gormFilter(db, where)
	if err != nil {
		return 0, err
	}
	if len(exprs) == 0 {
		return 0, errors.New("update without conditions")
	}

	set := make(map[string]any, len(values))
	for k, v := range values {
		set[k] = gormArg(v)
	}
	res := db.Table(entity.Table).Clauses(clause.Where{Exprs: exprs}).Updates(set)
	return res.RowsAffected, res.Error
}

func (d *GormDriver) Delete(ctx context.Context, entity *schema.Entity, where crud.Filter) (int64, error) {
	db := d.conn(ctx)
	exprs, err := d.gormFilter(db, where)
	if err != nil {
		return 0, err
	}
	if len(exprs) == 0 {
		return 0, errors.New("delete without conditions")
	}

	res := db.Table(entity.Table).Clauses(clause.Where{Exprs: exprs}).Delete(map[string]any{})
	return res.RowsAffected, res.Error
}

func (d *GormDriver) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(gormTxKey{}).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}

	var fnErr error
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(context.WithValue(ctx, gormTxKey{}, tx))
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return d.TranslateError(err)
	}
	return nil
}

func (d *GormDriver) TranslateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return crud.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return crud.Conflictf("unique constraint violated")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return crud.Conflictf("foreign key violated")
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return &crud.ValidationError{Fields: crud.FieldErrors{"value": {"check constraint violated"}}}
	}
	return translatePgError(err)
}

func (d *GormDriver) gormFilter(db *gorm.DB, f crud.Filter) ([]clause.Expression, error) {
	exprs := make([]clause.Expression, 0, len(f))
	for _, c := range f {
		expr, err := d.gormCondition(db, c)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

func (d *GormDriver) gormCondition(db *gorm.DB, c crud.Condition) (clause.Expression, error) {
	col := clause.Column{Name: c.Column}
	switch c.Op {
	case crud.OpEq:
		return clause.Eq{Column: col, Value: gormArg(c.Value)}, nil
	case crud.OpNeq:
		return clause.Neq{Column: col, Value: gormArg(c.Value)}, nil
	case crud.OpGt:
		return clause.Gt{Column: col, Value: gormArg(c.Value)}, nil
	case crud.OpGte:
		return clause.Gte{Column: col, Value: gormArg(c.Value)}, nil
	case crud.OpLt:
		return clause.Lt{Column: col, Value: gormArg(c.Value)}, nil
	case crud.OpLte:
		return clause.Lte{Column: col, Value: gormArg(c.Value)}, nil
	case crud.OpLike:
		return clause.Like{Column: col, Value: c.Value}, nil
	case crud.OpIsNull:
		return clause.Expr{SQL: "? IS NULL", Vars: []any{col}}, nil
	case crud.OpNotNull:
		return clause.Expr{SQL: "? IS NOT NULL", Vars: []any{col}}, nil
	case crud.OpIn:
		values := make([]any, len(c.Values))
		for i, v := range c.Values {
			values[i] = gormArg(v)
		}
		return clause.IN{Column: col, Values: values}, nil
	case crud.OpInSubquery:
		if c.Sub == nil {
			return nil, fmt.Errorf("condition on %s: missing subquery", c.Column)
		}
		inner, err := d.gormFilter(db, c.Sub.Where)
		if err != nil {
			return nil, err
		}
		sub := db.Session(&gorm.Session{NewDB: true}).Table(c.Sub.Entity.Table).Select(c.Sub.Column)
		if len(inner) > 0 {
			sub = sub.Clauses(clause.Where{Exprs: inner})
		}
		return clause.Expr{SQL: "? IN (?)", Vars: []any{col, sub}}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", c.Op)
}

// gormArg passes JSON documents as text and uuids through their driver.Valuer.
func gormArg(v any) any {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	return v
}

package crud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/model"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/requestcontext"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// engine is the single code path behind Service and TenantAwareService. The two differ only in the
// scope they pass in.
type engine[T any] struct {
	entity   *schema.Entity
	registry *schema.Registry
	driver   Driver
	mapper   *schema.Mapper[T]
	cfg      config
}

func newEngine[T any](driver Driver, registry *schema.Registry, entityName string, opts []Option) (*engine[T], error) {
	if driver == nil {
		return nil, errors.New("crud: driver is required")
	}
	if registry == nil {
		return nil, errors.New("crud: registry is required")
	}
	entity, ok := registry.Entity(entityName)
	if !ok {
		return nil, fmt.Errorf("crud: entity %q is not registered", entityName)
	}

	mapper, err := schema.NewMapper[T]()
	if err != nil {
		return nil, fmt.Errorf("crud: %w", err)
	}
	if err := mapper.Covers(entity); err != nil {
		return nil, fmt.Errorf("crud: %w", err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &engine[T]{
		entity:   entity,
		registry: registry,
		driver:   driver,
		mapper:   mapper,
		cfg:      cfg,
	}, nil
}

func (e *engine[T]) now() time.Time {
	return schema.NormalizeTime(e.cfg.clock())
}

// run wraps one public operation with error translation, metrics and logging.
func (e *engine[T]) run(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := e.translate(fn())

	outcome := Outcome(err)
	e.cfg.observer.ObserveOperation(e.entity.Name, op, e.driver.Name(), outcome, time.Since(start))

	if err != nil {
		logger := e.cfg.logger
		if scoped, ok := logging.FromContext(ctx); ok {
			logger = scoped
		}
		fields := []zap.Field{
			zap.String("entity", e.entity.Name),
			zap.String("operation", op),
			zap.String("driver", e.driver.Name()),
			zap.String("outcome", outcome),
			zap.Error(err),
		}
		if reqID := requestcontext.CurrentRequestID(ctx); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		switch outcome {
		case "unavailable", "canceled":
			logger.Warn("crud operation failed", fields...)
		case "error":
			logger.Error("crud operation failed", fields...)
		default:
			logger.Debug("crud operation rejected", fields...)
		}
	}
	return err
}

func (e *engine[T]) translate(err error) error {
	if err == nil || inTaxonomy(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	var ve *schema.ValueError
	if errors.As(err, &ve) {
		return &ValidationError{Entity: e.entity.Name, Fields: FieldErrors{ve.Column: {ve.Reason}}}
	}
	return e.driver.TranslateError(err)
}

// read executes a read with exponential backoff on ErrUnavailable. Reads inside a transaction are not
// retried; the transaction is already aborted.
func (e *engine[T]) read(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := func() error {
		err := e.translate(fn(ctx))
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	if e.cfg.readRetries == 0 || inTransaction(ctx) {
		err := attempt()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.retryInterval
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, e.cfg.readRetries), ctx))
}

// fetch loads matching records with the requested relations, normalized and in order.
func (e *engine[T]) fetch(ctx context.Context, q Query, relations []string, sc scope, withDeleted bool) ([]schema.Record, error) {
	var records []schema.Record
	err := e.read(ctx, func(ctx context.Context) error {
		rows, err := e.driver.Find(ctx, q)
		if err != nil {
			return err
		}
		records, err = normalizeRows(q.Entity, rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := e.loadRelations(ctx, q.Entity, records, relations, sc, withDeleted); err != nil {
		return nil, err
	}
	return records, nil
}

func (e *engine[T]) count(ctx context.Context, entity *schema.Entity, filter Filter) (int64, error) {
	var total int64
	err := e.read(ctx, func(ctx context.Context) error {
		n, err := e.driver.Count(ctx, entity, filter)
		total = n
		return err
	})
	return total, err
}

func normalizeRows(entity *schema.Entity, rows []schema.Record) ([]schema.Record, error) {
	out := make([]schema.Record, len(rows))
	for i, row := range rows {
		rec := make(schema.Record, len(entity.Columns))
		for _, col := range entity.Columns {
			v, err := schema.Normalize(col, row[col.Name])
			if err != nil {
				return nil, fmt.Errorf("decode %s row: %w", entity.Name, err)
			}
			rec[col.Name] = v
		}
		out[i] = rec
	}
	return out, nil
}

// loadRelations attaches one level of relations. Related rows go through the same scope as the root
// query, so a relation never exposes rows of another tenant.
func (e *engine[T]) loadRelations(ctx context.Context, entity *schema.Entity, records []schema.Record, names []string, sc scope, withDeleted bool) error {
	if len(records) == 0 {
		return nil
	}

	for _, name := range names {
		rel, _ := entity.Relation(name)
		target, ok := e.registry.Entity(rel.Target)
		if !ok {
			return fmt.Errorf("relation %q targets unregistered entity %q", rel.Name, rel.Target)
		}

		localKey, remoteKey := rel.JoinColumn, model.ColumnID
		if rel.Kind == schema.OneToMany {
			localKey, remoteKey = model.ColumnID, rel.JoinColumn
		}

		keys := distinctValues(records, localKey)
		if len(keys) == 0 {
			for _, rec := range records {
				rec[name] = emptyRelation(rel.Kind)
			}
			continue
		}

		order, _ := compileOrder(target, nil)
		q := Query{
			Entity: target,
			Where:  append(Filter{{Column: remoteKey, Op: OpIn, Values: keys}}, scopeFilter(target, sc, withDeleted)...),
			Order:  order,
		}
		related, err := e.fetch(ctx, q, nil, sc, withDeleted)
		if err != nil {
			return err
		}

		grouped := make(map[any][]schema.Record, len(related))
		for _, r := range related {
			grouped[r[remoteKey]] = append(grouped[r[remoteKey]], r)
		}
		for _, rec := range records {
			matches := grouped[rec[localKey]]
			if rel.Kind == schema.OneToMany {
				children := matches
				if children == nil {
					children = []schema.Record{}
				}
				rec[name] = children
				continue
			}
			if len(matches) == 0 {
				rec[name] = schema.Record(nil)
				continue
			}
			rec[name] = matches[0]
		}
	}
	return nil
}

func emptyRelation(kind schema.RelationKind) any {
	if kind == schema.OneToMany {
		return []schema.Record{}
	}
	return schema.Record(nil)
}

func distinctValues(records []schema.Record, column string) []any {
	seen := make(map[any]struct{}, len(records))
	var out []any
	for _, rec := range records {
		v := rec[column]
		if v == nil {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (e *engine[T]) toItems(records []schema.Record) ([]T, error) {
	items := make([]T, 0, len(records))
	for _, rec := range records {
		item, err := e.mapper.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", e.entity.Name, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *engine[T]) find(ctx context.Context, opts FindOptions, sc scope, limit int) (Result[T], error) {
	filter, err := compile(e.registry, e.entity, opts.Where, sc, opts.WithDeleted)
	if err != nil {
		return Result[T]{}, err
	}
	order, err := compileOrder(e.entity, opts.Order)
	if err != nil {
		return Result[T]{}, err
	}
	if err := validateRelations(e.entity, opts.Relations); err != nil {
		return Result[T]{}, err
	}

	skip := opts.Skip
	if skip < 0 {
		return Result[T]{}, newValidationError(e.entity.Name, map[string]string{"skip": "must not be negative"})
	}

	records, err := e.fetch(ctx, Query{Entity: e.entity, Where: filter, Order: order, Offset: skip, Limit: limit}, opts.Relations, sc, opts.WithDeleted)
	if err != nil {
		return Result[T]{}, err
	}
	total, err := e.count(ctx, e.entity, filter)
	if err != nil {
		return Result[T]{}, err
	}

	items, err := e.toItems(records)
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Items: items, Total: total}, nil
}

func (e *engine[T]) findAll(ctx context.Context, opts FindOptions, sc scope) (Result[T], error) {
	var res Result[T]
	err := e.run(ctx, "find_all", func() error {
		if opts.Take < 0 {
			return newValidationError(e.entity.Name, map[string]string{"take": "must not be negative"})
		}
		var err error
		res, err = e.find(ctx, opts, sc, opts.Take)
		return err
	})
	return res, err
}

func (e *engine[T]) paginate(ctx context.Context, opts FindOptions, sc scope) (Result[T], error) {
	var res Result[T]
	err := e.run(ctx, "paginate", func() error {
		take := opts.Take
		switch {
		case take < 0:
			return newValidationError(e.entity.Name, map[string]string{"take": "must not be negative"})
		case take == 0:
			take = DefaultPageSize
		case take > MaxPageSize:
			take = MaxPageSize
		}
		var err error
		res, err = e.find(ctx, opts, sc, take)
		return err
	})
	return res, err
}

func (e *engine[T]) countRows(ctx context.Context, opts FindOptions, sc scope) (int64, error) {
	var total int64
	err := e.run(ctx, "count", func() error {
		filter, err := compile(e.registry, e.entity, opts.Where, sc, opts.WithDeleted)
		if err != nil {
			return err
		}
		total, err = e.count(ctx, e.entity, filter)
		return err
	})
	return total, err
}

// findOneRecord returns the first match or ErrNotFound.
func (e *engine[T]) findOneRecord(ctx context.Context, opts FindOneOptions, sc scope) (schema.Record, error) {
	filter, err := compile(e.registry, e.entity, opts.Where, sc, opts.WithDeleted)
	if err != nil {
		return nil, err
	}
	order, err := compileOrder(e.entity, opts.Order)
	if err != nil {
		return nil, err
	}
	if err := validateRelations(e.entity, opts.Relations); err != nil {
		return nil, err
	}

	records, err := e.fetch(ctx, Query{Entity: e.entity, Where: filter, Order: order, Limit: 1}, opts.Relations, sc, opts.WithDeleted)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, e.entity.Name)
	}
	return records[0], nil
}

func (e *engine[T]) findOne(ctx context.Context, op string, opts FindOneOptions, sc scope) (T, error) {
	var out T
	err := e.run(ctx, op, func() error {
		rec, err := e.findOneRecord(ctx, opts, sc)
		if err != nil {
			return err
		}
		out, err = e.mapper.FromRecord(rec)
		return err
	})
	return out, err
}

func (e *engine[T]) findOneByIDString(ctx context.Context, id string, opts FindOneOptions, sc scope) (T, error) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed == uuid.Nil {
		var zero T
		return zero, e.run(ctx, "find_one_by_id", func() error {
			return newValidationError(e.entity.Name, map[string]string{model.ColumnID: "must be a valid uuid"})
		})
	}
	return e.findOne(ctx, "find_one_by_id", withID(opts, parsed), sc)
}

// withID adds the id equality to a copy of opts.Where.
func withID(opts FindOneOptions, id uuid.UUID) FindOneOptions {
	where := make(Where, len(opts.Where)+1)
	for k, v := range opts.Where {
		where[k] = v
	}
	where[model.ColumnID] = id
	opts.Where = where
	return opts
}

func (e *engine[T]) transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("crud: transaction fn is required")
	}
	// Errors returned by fn reach the caller unchanged; drivers translate their own begin and commit failures.
	start := time.Now()
	err := e.driver.WithTx(withTxMarker(ctx), fn)
	e.cfg.observer.ObserveOperation(e.entity.Name, "transaction", e.driver.Name(), Outcome(err), time.Since(start))
	return err
}

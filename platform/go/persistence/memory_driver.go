package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/schema"
)

// DriverMemory is the name of the in-process driver.
const DriverMemory = "memory"

// MemoryDriver keeps rows in process memory while reproducing PostgreSQL semantics: NULL ordering,
// byte-wise string collation, unique and foreign-key constraints and on-delete actions.
//
// Stored records are never mutated in place, so a transaction snapshot is a shallow copy of the table
// slices. Transactions are serialized; reads outside a transaction may observe uncommitted writes.
type MemoryDriver struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	registry *schema.Registry
	tables   map[string][]schema.Record
}

var _ crud.Driver = (*MemoryDriver)(nil)

// NewMemoryDriver returns an empty driver; call EnsureSchema before use.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{tables: make(map[string][]schema.Record)}
}

func (d *MemoryDriver) Name() string { return DriverMemory }

type memoryTxKey struct{}

func inMemoryTx(ctx context.Context) bool {
	v, _ := ctx.Value(memoryTxKey{}).(bool)
	return v
}

func (d *MemoryDriver) EnsureSchema(_ context.Context, registry *schema.Registry) error {
	if registry == nil {
		return errors.New("registry is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.registry = registry
	for _, e := range registry.Entities() {
		if _, ok := d.tables[e.Name]; !ok {
			d.tables[e.Name] = []schema.Record{}
		}
	}
	return nil
}

func (d *MemoryDriver) table(entity *schema.Entity) ([]schema.Record, error) {
	rows, ok := d.tables[entity.Name]
	if !ok {
		return nil, fmt.Errorf("memory: table %q does not exist", entity.Table)
	}
	return rows, nil
}

func (d *MemoryDriver) Find(_ context.Context, q crud.Query) ([]schema.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.table(q.Entity)
	if err != nil {
		return nil, err
	}

	var out []schema.Record
	for _, r := range rows {
		ok, err := d.matches(r, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.Order {
			c := compareNullsLast(out[i][o.Column], out[j][o.Column])
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			out = nil
		} else {
			out = out[q.Offset:]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	result := make([]schema.Record, len(out))
	for i, r := range out {
		result[i] = r.Clone()
	}
	return result, nil
}

func (d *MemoryDriver) Count(_ context.Context, entity *schema.Entity, where crud.Filter) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.table(entity)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rows {
		ok, err := d.matches(r, where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// lockWrite serializes a mutation with running transactions unless ctx belongs to one.
func (d *MemoryDriver) lockWrite(ctx context.Context) func() {
	joined := inMemoryTx(ctx)
	if !joined {
		d.txMu.Lock()
	}
	d.mu.Lock()
	return func() {
		d.mu.Unlock()
		if !joined {
			d.txMu.Unlock()
		}
	}
}

func (d *MemoryDriver) Insert(ctx context.Context, entity *schema.Entity, rec schema.Record) error {
	unlock := d.lockWrite(ctx)
	defer unlock()

	rows, err := d.table(entity)
	if err != nil {
		return err
	}

	row := make(schema.Record, len(entity.Columns))
	for _, c := range entity.Columns {
		row[c.Name] = rec[c.Name]
	}

	if err := d.checkRow(entity, row, rows, -1); err != nil {
		return err
	}

	next := make([]schema.Record, len(rows), len(rows)+1)
	copy(next, rows)
	d.tables[entity.Name] = append(next, row)
	return nil
}

func (d *MemoryDriver) Update(ctx context.Context, entity *schema.Entity, where crud.Filter, values schema.Record) (int64, error) {
	unlock := d.lockWrite(ctx)
	defer unlock()

	rows, err := d.table(entity)
	if err != nil {
		return 0, err
	}
	for name := range values {
		if !entity.HasColumn(name) {
			return 0, fmt.Errorf("memory: column %q of %s does not exist", name, entity.Table)
		}
	}

	next := make([]schema.Record, len(rows))
	copy(next, rows)
	var changed []int
	for i, r := range rows {
		ok, err := d.matches(r, where)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		updated := r.Clone()
		for k, v := range values {
			updated[k] = v
		}
		next[i] = updated
		changed = append(changed, i)
	}

	for _, i := range changed {
		if err := d.checkRow(entity, next[i], next, i); err != nil {
			return 0, err
		}
	}

	d.tables[entity.Name] = next
	return int64(len(changed)), nil
}

func (d *MemoryDriver) Delete(ctx context.Context, entity *schema.Entity, where crud.Filter) (int64, error) {
	unlock := d.lockWrite(ctx)
	defer unlock()

	rows, err := d.table(entity)
	if err != nil {
		return 0, err
	}

	ids := make(map[uuid.UUID]bool)
	for _, r := range rows {
		ok, err := d.matches(r, where)
		if err != nil {
			return 0, err
		}
		if ok {
			ids[r[schema.PrimaryKey].(uuid.UUID)] = true
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	work := d.snapshot()
	if err := d.removeRows(work, entity, ids); err != nil {
		return 0, err
	}
	d.tables = work
	return int64(len(ids)), nil
}

// removeRows deletes ids from entity and applies the declared on-delete action to referencing rows.
func (d *MemoryDriver) removeRows(work map[string][]schema.Record, entity *schema.Entity, ids map[uuid.UUID]bool) error {
	if len(ids) == 0 {
		return nil
	}

	rows := work[entity.Name]
	kept := make([]schema.Record, 0, len(rows))
	for _, r := range rows {
		if !ids[r[schema.PrimaryKey].(uuid.UUID)] {
			kept = append(kept, r)
		}
	}
	work[entity.Name] = kept

	if d.registry == nil {
		return nil
	}
	for _, in := range d.registry.Referencing(entity.Name) {
		srcRows, ok := work[in.Source.Name]
		if !ok {
			continue
		}
		cascade := make(map[uuid.UUID]bool)
		updated := make([]schema.Record, len(srcRows))
		copy(updated, srcRows)

		for i, r := range srcRows {
			ref, ok := r[in.Relation.JoinColumn].(uuid.UUID)
			if !ok || !ids[ref] {
				continue
			}
			switch in.Relation.OnDelete {
			case schema.OnDeleteCascade:
				cascade[r[schema.PrimaryKey].(uuid.UUID)] = true
			case schema.OnDeleteSetNull:
				c := r.Clone()
				c[in.Relation.JoinColumn] = nil
				updated[i] = c
			default:
				return crud.Conflictf("%s is still referenced from %s.%s", entity.Table, in.Source.Table, in.Relation.JoinColumn)
			}
		}
		work[in.Source.Name] = updated

		if err := d.removeRows(work, in.Source, cascade); err != nil {
			return err
		}
	}
	return nil
}

func (d *MemoryDriver) snapshot() map[string][]schema.Record {
	out := make(map[string][]schema.Record, len(d.tables))
	for name, rows := range d.tables {
		cp := make([]schema.Record, len(rows))
		copy(cp, rows)
		out[name] = cp
	}
	return out
}

// WithTx serializes transactions and restores the pre-transaction snapshot when fn fails or panics.
func (d *MemoryDriver) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemoryTx(ctx) {
		return fn(ctx)
	}

	d.txMu.Lock()
	defer d.txMu.Unlock()

	d.mu.RLock()
	saved := d.snapshot()
	d.mu.RUnlock()

	rollback := func() {
		d.mu.Lock()
		d.tables = saved
		d.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		rollback()
		return err
	}
	return nil
}

func (d *MemoryDriver) TranslateError(err error) error {
	if err == nil {
		return nil
	}
	return crud.StorageFailure("memory", err)
}

// checkRow enforces NOT NULL, primary key, unique, unique-together and foreign-key constraints for the
// row at index self (-1 for a new row) against rows.
func (d *MemoryDriver) checkRow(entity *schema.Entity, row schema.Record, rows []schema.Record, self int) error {
	for _, c := range entity.Columns {
		if !c.Nullable && row[c.Name] == nil {
			return &crud.ValidationError{Entity: entity.Table, Fields: crud.FieldErrors{c.Name: {"is required"}}}
		}
	}

	uniques := [][]string{{schema.PrimaryKey}}
	for _, c := range entity.Columns {
		if c.Unique && !c.Primary {
			uniques = append(uniques, []string{c.Name})
		}
	}
	uniques = append(uniques, entity.UniqueTogether...)

	for _, cols := range uniques {
		if hasNull(row, cols) {
			continue
		}
		for i, other := range rows {
			if i == self {
				continue
			}
			if sameValues(row, other, cols) {
				return crud.Conflictf("%s violates unique constraint %s", entity.Table, constraintName(entity.Table, cols, "key"))
			}
		}
	}

	if d.registry == nil {
		return nil
	}
	for _, r := range entity.Relations {
		if r.Kind != schema.ManyToOne {
			continue
		}
		ref := row[r.JoinColumn]
		if ref == nil {
			continue
		}
		target, ok := d.registry.Entity(r.Target)
		if !ok {
			continue
		}
		candidates := d.tables[target.Name]
		if target.Name == entity.Name {
			candidates = append(append([]schema.Record{}, rows...), row)
		}
		found := false
		for _, t := range candidates {
			if equalValues(t[schema.PrimaryKey], ref) {
				found = true
				break
			}
		}
		if !found {
			return crud.Conflictf("%s violates foreign key %s", entity.Table, constraintName(entity.Table, []string{r.JoinColumn}, "fkey"))
		}
	}
	return nil
}

func hasNull(row schema.Record, cols []string) bool {
	for _, c := range cols {
		if row[c] == nil {
			return true
		}
	}
	return false
}

func sameValues(a, b schema.Record, cols []string) bool {
	for _, c := range cols {
		if !equalValues(a[c], b[c]) {
			return false
		}
	}
	return true
}

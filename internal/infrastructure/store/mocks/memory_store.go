package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/stock-reservation/internal/domain/aggregate"
	"github.com/example/stock-reservation/internal/domain/inventory"
	"github.com/example/stock-reservation/internal/domain/order"
	"github.com/example/stock-reservation/internal/domain/product"
	"github.com/example/stock-reservation/internal/infrastructure/store"
)

const (
	productsTable     = "products"
	reservationsTable = "reservations"
	ordersTable       = "orders"
)

var ErrTxDone = errors.New("transaction has already been committed or rolled back")

type memRow struct {
	data    []byte
	version int
}

// MemoryStore is an in-memory stand-in for store.PostgresDB. Units of work
// buffer their writes and apply them atomically on Commit, checking the
// same version tokens the Postgres repositories check.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]map[string]memRow
	outbox []store.OutboxMessage

	// For tracking calls in tests
	BeginCalls  int
	CommitCalls int
	// CommitErr makes every Commit fail after validation, leaving the store untouched.
	CommitErr error
	// BeforeCommit runs before a commit is validated, outside the store lock.
	BeforeCommit func(commit int)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: map[string]map[string]memRow{
			productsTable:     {},
			reservationsTable: {},
			ordersTable:       {},
		},
	}
}

func (s *MemoryStore) begin() *memoryUnitOfWork {
	s.mu.Lock()
	s.BeginCalls++
	s.mu.Unlock()
	return &memoryUnitOfWork{store: s, changes: map[string]map[string]*memChange{}}
}

func (s *MemoryStore) BeginProducts(ctx context.Context) (product.UnitOfWork, error) {
	return s.begin(), ctx.Err()
}

func (s *MemoryStore) BeginInventory(ctx context.Context) (inventory.UnitOfWork, error) {
	return s.begin(), ctx.Err()
}

func (s *MemoryStore) BeginOrders(ctx context.Context) (order.UnitOfWork, error) {
	return s.begin(), ctx.Err()
}

// Outbox returns a copy of every committed outbox row.
func (s *MemoryStore) Outbox() []store.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.OutboxMessage, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// Seed stores aggregates directly, without outbox rows, and clears their
// pending events.
func (s *MemoryStore) Seed(aggs ...aggregate.Tracked) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range aggs {
		root := a.Base()
		s.tables[tableFor(a)][root.ID] = memRow{data: mustMarshal(a), version: root.Version}
		root.ClearEvents()
	}
}

// BumpProductVersion simulates another writer committing a change to a
// product between our load and our commit.
func (s *MemoryStore) BumpProductVersion(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.tables[productsTable][id]
	row.version++
	s.tables[productsTable][id] = row
}

func (s *MemoryStore) Product(id string) (*product.Product, bool) {
	return loadCommitted[product.Product](s, productsTable, id)
}

func (s *MemoryStore) Reservation(id string) (*inventory.Reservation, bool) {
	return loadCommitted[inventory.Reservation](s, reservationsTable, id)
}

func (s *MemoryStore) Order(id string) (*order.Order, bool) {
	return loadCommitted[order.Order](s, ordersTable, id)
}

func loadCommitted[T any, P interface {
	*T
	aggregate.Tracked
}](s *MemoryStore, table, id string) (*T, bool) {
	s.mu.Lock()
	row, ok := s.tables[table][id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return decode[T, P](row), true
}

func tableFor(a aggregate.Tracked) string {
	switch a.AggregateType() {
	case product.AggregateType:
		return productsTable
	case inventory.AggregateType:
		return reservationsTable
	case order.AggregateType:
		return ordersTable
	}
	panic("mocks: unknown aggregate type " + a.AggregateType())
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// decode restores an aggregate from its row; the version column wins over
// the JSON body so BumpVersion is observable.
func decode[T any, P interface {
	*T
	aggregate.Tracked
}](row memRow) *T {
	v := new(T)
	if err := json.Unmarshal(row.data, v); err != nil {
		panic(err)
	}
	P(v).Base().Version = row.version
	return v
}

type memChange struct {
	row     memRow
	base    int
	insert  bool
	deleted bool
}

type memoryUnitOfWork struct {
	store   *MemoryStore
	changes map[string]map[string]*memChange
	tracker store.Tracker
	done    bool
}

func (u *memoryUnitOfWork) Products() product.Repository {
	return &memoryProductRepository{uow: u}
}

func (u *memoryUnitOfWork) Reservations() inventory.Repository {
	return &memoryReservationRepository{uow: u}
}

func (u *memoryUnitOfWork) Orders() order.Repository {
	return &memoryOrderRepository{uow: u}
}

func (u *memoryUnitOfWork) get(table, id string) (memRow, bool) {
	if c, ok := u.changes[table][id]; ok {
		if c.deleted {
			return memRow{}, false
		}
		return c.row, true
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	row, ok := u.store.tables[table][id]
	return row, ok
}

// rows returns the table as this unit of work sees it.
func (u *memoryUnitOfWork) rows(table string) []memRow {
	u.store.mu.Lock()
	merged := make(map[string]memRow, len(u.store.tables[table]))
	for id, row := range u.store.tables[table] {
		merged[id] = row
	}
	u.store.mu.Unlock()

	for id, c := range u.changes[table] {
		if c.deleted {
			delete(merged, id)
			continue
		}
		merged[id] = c.row
	}

	out := make([]memRow, 0, len(merged))
	for _, row := range merged {
		out = append(out, row)
	}
	return out
}

func (u *memoryUnitOfWork) stage(table, id string, c *memChange) {
	if u.changes[table] == nil {
		u.changes[table] = map[string]*memChange{}
	}
	u.changes[table][id] = c
}

func (u *memoryUnitOfWork) add(a aggregate.Tracked) error {
	if u.done {
		return ErrTxDone
	}
	table, id := tableFor(a), a.Base().ID
	if _, exists := u.get(table, id); exists {
		return fmt.Errorf("%w: %s %s already exists", aggregate.ErrConflict, a.AggregateType(), id)
	}
	u.stage(table, id, &memChange{row: memRow{data: mustMarshal(a), version: a.Base().Version}, insert: true})
	u.tracker.Track(a)
	return nil
}

func (u *memoryUnitOfWork) update(a aggregate.Tracked, expectedVersion int) error {
	if u.done {
		return ErrTxDone
	}
	table, id := tableFor(a), a.Base().ID
	current, exists := u.get(table, id)
	if !exists || current.version != expectedVersion {
		return fmt.Errorf("%w: %s %s expected version %d", aggregate.ErrVersionConflict, a.AggregateType(), id, expectedVersion)
	}

	c := &memChange{base: expectedVersion}
	if prev, ok := u.changes[table][id]; ok {
		c.base, c.insert = prev.base, prev.insert
	}
	c.row = memRow{data: mustMarshal(a), version: a.Base().Version}
	u.stage(table, id, c)
	u.tracker.Track(a)
	return nil
}

func (u *memoryUnitOfWork) remove(table, id string) (bool, error) {
	if u.done {
		return false, ErrTxDone
	}
	current, exists := u.get(table, id)
	if !exists {
		return false, nil
	}
	if prev, ok := u.changes[table][id]; ok && prev.insert {
		delete(u.changes[table], id)
		return true, nil
	}
	base := current.version
	if prev, ok := u.changes[table][id]; ok {
		base = prev.base
	}
	u.stage(table, id, &memChange{base: base, deleted: true})
	return true, nil
}

func (u *memoryUnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := u.store
	s.mu.Lock()
	s.CommitCalls++
	commit := s.CommitCalls
	hook := s.BeforeCommit
	s.mu.Unlock()
	if hook != nil {
		hook(commit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for table, changes := range u.changes {
		for id, c := range changes {
			current, exists := s.tables[table][id]
			switch {
			case c.insert && exists:
				return fmt.Errorf("%w: %s %s already exists", aggregate.ErrConflict, table, id)
			case !c.insert && (!exists || current.version != c.base):
				return fmt.Errorf("%w: %s %s expected version %d", aggregate.ErrVersionConflict, table, id, c.base)
			}
		}
	}

	msgs, err := u.tracker.OutboxMessages()
	if err != nil {
		return err
	}
	if s.CommitErr != nil {
		return s.CommitErr
	}

	for table, changes := range u.changes {
		for id, c := range changes {
			if c.deleted {
				delete(s.tables[table], id)
				continue
			}
			s.tables[table][id] = c.row
		}
	}

	now := time.Now().UTC()
	for _, m := range msgs {
		m.ID = int64(len(s.outbox) + 1)
		m.UpdatedAt = now
		s.outbox = append(s.outbox, m)
	}

	u.done = true
	u.tracker.ClearEvents()
	return nil
}

func (u *memoryUnitOfWork) Rollback(ctx context.Context) error {
	u.done = true
	u.changes = nil
	return nil
}

type memoryProductRepository struct {
	uow *memoryUnitOfWork
}

func (r *memoryProductRepository) Load(ctx context.Context, id string) (*product.Product, error) {
	row, ok := r.uow.get(productsTable, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", product.ErrProductNotFound, id)
	}
	return decode[product.Product](row), nil
}

func (r *memoryProductRepository) Add(ctx context.Context, p *product.Product) error {
	return r.uow.add(p)
}

func (r *memoryProductRepository) Update(ctx context.Context, p *product.Product, expectedVersion int) error {
	return r.uow.update(p, expectedVersion)
}

func (r *memoryProductRepository) Delete(ctx context.Context, id string) error {
	// Mirrors the product_reservations foreign key.
	for _, row := range r.uow.rows(reservationsTable) {
		if decode[inventory.Reservation](row).ProductID == id {
			return fmt.Errorf("%w: %s", product.ErrProductInUse, id)
		}
	}
	ok, err := r.uow.remove(productsTable, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", product.ErrProductNotFound, id)
	}
	return nil
}

func (r *memoryProductRepository) List(ctx context.Context, filter product.ListFilter) ([]*product.Product, int, error) {
	filter = filter.Normalize()
	search := strings.ToLower(filter.Search)

	var all []*product.Product
	for _, row := range r.uow.rows(productsTable) {
		p := decode[product.Product](row)
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		all = append(all, p)
	}

	compare := func(a, b *product.Product) int {
		switch filter.SortBy {
		case product.SortByPrice:
			return a.Price.Cmp(b.Price)
		case product.SortByQuantity:
			return a.Quantity - b.Quantity
		case product.SortByCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return strings.Compare(a.Name, b.Name)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		c := compare(all[i], all[j])
		if filter.Desc {
			c = -c
		}
		if c == 0 {
			return all[i].ID < all[j].ID
		}
		return c < 0
	})

	total := len(all)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

type memoryReservationRepository struct {
	uow *memoryUnitOfWork
}

func (r *memoryReservationRepository) Load(ctx context.Context, id string) (*inventory.Reservation, error) {
	row, ok := r.uow.get(reservationsTable, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrReservationNotFound, id)
	}
	return decode[inventory.Reservation](row), nil
}

func (r *memoryReservationRepository) Add(ctx context.Context, res *inventory.Reservation) error {
	if _, ok := r.uow.get(productsTable, res.ProductID); !ok {
		return fmt.Errorf("%w: %s", product.ErrProductNotFound, res.ProductID)
	}
	return r.uow.add(res)
}

func (r *memoryReservationRepository) Update(ctx context.Context, res *inventory.Reservation, expectedVersion int) error {
	return r.uow.update(res, expectedVersion)
}

func (r *memoryReservationRepository) Delete(ctx context.Context, id string) error {
	ok, err := r.uow.remove(reservationsTable, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", inventory.ErrReservationNotFound, id)
	}
	return nil
}

func (r *memoryReservationRepository) SumPendingQuantity(ctx context.Context, productID string, now time.Time) (int, error) {
	total := 0
	for _, row := range r.uow.rows(reservationsTable) {
		res := decode[inventory.Reservation](row)
		if res.ProductID == productID && res.Status == inventory.StatusPending && !res.ExpiresAt.Before(now) {
			total += res.Quantity
		}
	}
	return total, nil
}

func (r *memoryReservationRepository) ListExpiredPending(ctx context.Context, max int, now time.Time) ([]*inventory.Reservation, error) {
	var out []*inventory.Reservation
	for _, row := range r.uow.rows(reservationsTable) {
		res := decode[inventory.Reservation](row)
		if res.Status == inventory.StatusPending && res.ExpiresAt.Before(now) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

type memoryOrderRepository struct {
	uow *memoryUnitOfWork
}

func (r *memoryOrderRepository) Load(ctx context.Context, id string) (*order.Order, error) {
	row, ok := r.uow.get(ordersTable, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", order.ErrOrderNotFound, id)
	}
	return decode[order.Order](row), nil
}

func (r *memoryOrderRepository) Add(ctx context.Context, o *order.Order) error {
	return r.uow.add(o)
}

func (r *memoryOrderRepository) Update(ctx context.Context, o *order.Order, expectedVersion int) error {
	return r.uow.update(o, expectedVersion)
}

func (r *memoryOrderRepository) Delete(ctx context.Context, id string) error {
	ok, err := r.uow.remove(ordersTable, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", order.ErrOrderNotFound, id)
	}
	return nil
}

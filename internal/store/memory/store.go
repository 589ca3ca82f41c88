// Package memory is an in-process BookingStore. Transactions buffer their
// writes and apply them on commit; per-key mutexes give the same
// serialization the Postgres advisory locks do.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"barberq/backend/internal/domain"
	"barberq/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	providers    map[string]domain.Provider
	appointments map[uuid.UUID]domain.Appointment
	customers    map[string]domain.Customer
	transactions []domain.CoinTransaction
	stats        map[string]int

	slotLocks     keyedMutex
	customerLocks keyedMutex
	apptLocks     keyedMutex

	clockMu     sync.Mutex
	lastCreated time.Time
}

var _ store.BookingStore = (*Store)(nil)

func New() *Store {
	return &Store{
		providers:    make(map[string]domain.Provider),
		appointments: make(map[uuid.UUID]domain.Appointment),
		customers:    make(map[string]domain.Customer),
		stats:        make(map[string]int),
	}
}

// PutProvider seeds a provider.
func (s *Store) PutProvider(p domain.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

// PutCustomer seeds a customer wallet.
func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

// PutAppointment seeds an appointment as-is, bypassing admission.
func (s *Store) PutAppointment(a domain.Appointment) domain.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.Must(uuid.NewV7())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	s.appointments[a.ID] = a
	return a
}

func (s *Store) Customer(id string) (domain.Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	return c, ok
}

// Transactions returns the wallet records of one customer in append order.
func (s *Store) Transactions(customerID string) []domain.CoinTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CoinTransaction
	for _, t := range s.transactions {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) CompletedCount(providerID string, day domain.DayWindow) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats[statKey(providerID, day)]
}

func (s *Store) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[providerID]
	if !ok {
		return domain.Provider{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpsertProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.providers[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
		if p.Name == "" {
			p.Name = existing.Name
		}
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.providers[p.ID] = p
	return p, nil
}

func (s *Store) ListDay(ctx context.Context, providerID string, day domain.DayWindow, statuses ...domain.Status) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDay(s.appointments, nil, providerID, day, statuses), nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a.Redacted(), nil
}

func (s *Store) ListExpired(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Appointment
	for _, a := range s.appointments {
		if a.Status == domain.StatusPending && a.PaymentStatus == domain.PaymentPending && a.CreatedAt.Before(createdBefore) {
			out = append(out, a.Redacted())
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InSlotTransaction(ctx context.Context, providerID string, day domain.DayWindow, fn func(ctx context.Context, tx store.SlotTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.slotLocks.Lock(providerID + ":" + day.Key())
	defer unlock()

	tx := &slotTx{
		s:            s,
		appointments: make(map[uuid.UUID]domain.Appointment),
		customers:    make(map[string]domain.Customer),
		stats:        make(map[string]int),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// slotTx reads through its own pending writes to the committed state.
type slotTx struct {
	s *Store

	appointments map[uuid.UUID]domain.Appointment
	customers    map[string]domain.Customer
	transactions []domain.CoinTransaction
	stats        map[string]int

	unlocks []func()
	held    map[*keyedMutex]map[string]bool
}

func (t *slotTx) lock(km *keyedMutex, key string) {
	if t.held == nil {
		t.held = make(map[*keyedMutex]map[string]bool)
	}
	if t.held[km] == nil {
		t.held[km] = make(map[string]bool)
	}
	if t.held[km][key] {
		return
	}
	t.held[km][key] = true
	t.unlocks = append(t.unlocks, km.Lock(key))
}

func (t *slotTx) release() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

func (t *slotTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, a := range t.appointments {
		t.s.appointments[id] = a
	}
	for id, c := range t.customers {
		t.s.customers[id] = c
	}
	t.s.transactions = append(t.s.transactions, t.transactions...)
	for k, v := range t.stats {
		t.s.stats[k] = v
	}
}

func (t *slotTx) GetProvider(ctx context.Context, providerID string) (domain.Provider, error) {
	return t.s.GetProvider(ctx, providerID)
}

func (t *slotTx) ListDay(ctx context.Context, providerID string, day domain.DayWindow, statuses ...domain.Status) ([]domain.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return listDay(t.s.appointments, t.appointments, providerID, day, statuses), nil
}

func (t *slotTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	t.lock(&t.s.apptLocks, id.String())
	if a, ok := t.appointments[id]; ok {
		return a, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.appointments[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *slotTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	now := t.s.stamp()
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if _, exists := t.appointments[appt.ID]; exists {
		return domain.Appointment{}, store.ErrConflict
	}
	t.s.mu.RLock()
	_, exists := t.s.appointments[appt.ID]
	t.s.mu.RUnlock()
	if exists {
		return domain.Appointment{}, store.ErrConflict
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now
	t.appointments[appt.ID] = appt
	return appt, nil
}

func (t *slotTx) UpdateAppointment(ctx context.Context, appt domain.Appointment, expected domain.Status) (domain.Appointment, error) {
	current, err := t.GetAppointment(ctx, appt.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if current.Status != expected {
		return domain.Appointment{}, store.ErrStaleState
	}
	current.Status = appt.Status
	current.PaymentStatus = appt.PaymentStatus
	current.CancellationReason = appt.CancellationReason
	current.DisplacedBy = appt.DisplacedBy
	current.CompensationCoins = appt.CompensationCoins
	current.UpdatedAt = time.Now().UTC()
	t.appointments[current.ID] = current
	return current, nil
}

func (t *slotTx) FindDisplacedBy(ctx context.Context, displacerID uuid.UUID) (domain.Appointment, error) {
	t.s.mu.RLock()
	var found *domain.Appointment
	for id, a := range t.s.appointments {
		if _, shadowed := t.appointments[id]; shadowed {
			continue
		}
		if a.DisplacedBy != nil && *a.DisplacedBy == displacerID && a.Displaced() {
			found = &a
		}
	}
	t.s.mu.RUnlock()
	for _, a := range t.appointments {
		if a.DisplacedBy != nil && *a.DisplacedBy == displacerID && a.Displaced() {
			found = &a
		}
	}
	if found == nil {
		return domain.Appointment{}, store.ErrNotFound
	}
	return t.GetAppointment(ctx, found.ID)
}

func (t *slotTx) GetCustomer(ctx context.Context, customerID string) (domain.Customer, error) {
	t.lock(&t.s.customerLocks, customerID)
	if c, ok := t.customers[customerID]; ok {
		return c, nil
	}
	c, ok := t.s.Customer(customerID)
	if !ok {
		return domain.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (t *slotTx) SaveCustomer(ctx context.Context, c domain.Customer) error {
	t.lock(&t.s.customerLocks, c.ID)
	c.UpdatedAt = time.Now().UTC()
	t.customers[c.ID] = c
	return nil
}

func (t *slotTx) AppendCoinTransaction(ctx context.Context, txn domain.CoinTransaction) error {
	if txn.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		txn.ID = id
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	t.transactions = append(t.transactions, txn)
	return nil
}

func (t *slotTx) IncrementProviderCompleted(ctx context.Context, providerID string, day domain.DayWindow) (int, error) {
	key := statKey(providerID, day)
	n, ok := t.stats[key]
	if !ok {
		n = t.s.CompletedCount(providerID, day)
	}
	n++
	t.stats[key] = n
	return n, nil
}

// stamp returns a strictly increasing creation time at the precision Postgres stores.
func (s *Store) stamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = now
	return now
}

func listDay(base, overlay map[uuid.UUID]domain.Appointment, providerID string, day domain.DayWindow, statuses []domain.Status) []domain.Appointment {
	var out []domain.Appointment
	match := func(a domain.Appointment) bool {
		if a.ProviderID != providerID || !day.Contains(a.Date) {
			return false
		}
		return len(statuses) == 0 || domain.StatusIn(a.Status, statuses...)
	}
	for id, a := range base {
		if o, ok := overlay[id]; ok {
			a = o
		}
		if match(a) {
			out = append(out, a.Redacted())
		}
	}
	for id, a := range overlay {
		if _, ok := base[id]; ok {
			continue
		}
		if match(a) {
			out = append(out, a.Redacted())
		}
	}
	sortByCreated(out)
	return out
}

func sortByCreated(appts []domain.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].CreatedAt.Equal(appts[j].CreatedAt) {
			return appts[i].ID.String() < appts[j].ID.String()
		}
		return appts[i].CreatedAt.Before(appts[j].CreatedAt)
	})
}

func statKey(providerID string, day domain.DayWindow) string {
	return providerID + ":" + day.Key()
}

// keyedMutex hands out one mutex per key, dropping it once nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Package memory is an in-process implementation of the settlement repositories and unit of
// work. It serializes transactions behind one mutex and rolls back by restoring a snapshot.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/ports"

	"github.com/shopspring/decimal"
)

var ErrNoTx = errors.New("memory: repository used outside WithinTx")

// ErrInvalidText matches what a UTF8 database answers for a malformed text value.
var ErrInvalidText = errors.New("memory: invalid byte sequence for encoding UTF8")

type txKey struct{}

type state struct {
	payments  map[string]payment.Payment
	order     map[string]int
	balances  map[string]ledger.Balance
	tariffs   map[string]ledger.Tariff
	processed map[string]time.Time
	seq       int
}

func (s state) clone() state {
	c := state{
		payments:  make(map[string]payment.Payment, len(s.payments)),
		order:     make(map[string]int, len(s.order)),
		balances:  make(map[string]ledger.Balance, len(s.balances)),
		tariffs:   make(map[string]ledger.Tariff, len(s.tariffs)),
		processed: make(map[string]time.Time, len(s.processed)),
		seq:       s.seq,
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.tariffs {
		c.tariffs[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

// Store holds all tables.
type Store struct {
	mu    sync.Mutex
	data  state
	fails map[string]error
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		data: state{
			payments:  map[string]payment.Payment{},
			order:     map[string]int{},
			balances:  map[string]ledger.Balance{},
			tariffs:   map[string]ledger.Tariff{},
			processed: map[string]time.Time{},
		},
		fails: map[string]error{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// FailNext makes the next call of op (e.g. "Credit", "MarkCompleted") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[op] = err
}

// injected is called with s.mu held by the running transaction.
func (s *Store) injected(op string) error {
	if err, ok := s.fails[op]; ok {
		delete(s.fails, op)
		return err
	}
	return nil
}

// WithinTx runs fn with exclusive access to the store; an error restores the prior state.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func inTx(ctx context.Context) error {
	if ctx.Value(txKey{}) == nil {
		return ErrNoTx
	}
	return nil
}

// ----- snapshot helpers for assertions -----

// Payments returns a copy of every payment of a ride, oldest first.
func (s *Store) Payments(rideID string) []payment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []payment.Payment
	for seq := 1; seq <= s.data.seq; seq++ {
		for id, n := range s.data.order {
			if n == seq && s.data.payments[id].RideID == rideID {
				out = append(out, s.data.payments[id])
			}
		}
	}
	return out
}

// BalanceOf returns the driver's balance, zero when absent.
func (s *Store) BalanceOf(driverID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.balances[driverID].Amount
}

// Processed reports whether messageID was recorded.
func (s *Store) Processed(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data.processed[messageID]
	return ok
}

// SeedTariff inserts a tariff outside any transaction.
func (s *Store) SeedTariff(city, pct string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tariffs[city] = ledger.Tariff{City: city, CommissionPercentage: decimal.RequireFromString(pct)}
}

// ----- repositories -----

// PaymentRepo returns the store as a ports.PaymentRepository.
func (s *Store) PaymentRepo() ports.PaymentRepository { return paymentRepo{s} }

// BalanceRepo returns the store as a ports.BalanceRepository.
func (s *Store) BalanceRepo() ports.BalanceRepository { return balanceRepo{s} }

// TariffRepo returns the store as a ports.TariffRepository.
func (s *Store) TariffRepo() ports.TariffRepository { return tariffRepo{s} }

// ProcessedRepo returns the store as a ports.ProcessedMessageRepository.
func (s *Store) ProcessedRepo() ports.ProcessedMessageRepository { return processedRepo{s} }

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(ctx context.Context, p *payment.Payment) (bool, error) {
	if err := inTx(ctx); err != nil {
		return false, err
	}
	if err := r.s.injected("Create"); err != nil {
		return false, err
	}
	for _, existing := range r.s.data.payments {
		if existing.RideID == p.RideID && existing.Status != payment.StatusFailed {
			return false, nil
		}
	}
	r.s.data.seq++
	r.s.data.order[p.ID] = r.s.data.seq
	r.s.data.payments[p.ID] = *p
	return true, nil
}

func (r paymentRepo) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	if err := inTx(ctx); err != nil {
		return nil, err
	}
	p, ok := r.s.data.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return &p, nil
}

func (r paymentRepo) LatestForRide(ctx context.Context, rideID string) (*payment.Payment, error) {
	if err := inTx(ctx); err != nil {
		return nil, err
	}
	if err := r.s.injected("LatestForRide"); err != nil {
		return nil, err
	}

	var (
		best     *payment.Payment
		bestOpen bool
		bestSeq  int
	)
	for id, p := range r.s.data.payments {
		if p.RideID != rideID {
			continue
		}
		open := p.Status != payment.StatusFailed
		seq := r.s.data.order[id]
		if best == nil || (open && !bestOpen) || (open == bestOpen && seq > bestSeq) {
			cp := p
			best, bestOpen, bestSeq = &cp, open, seq
		}
	}
	return best, nil
}

func (r paymentRepo) MarkCompleted(ctx context.Context, id string, split payment.Split, at time.Time) error {
	if err := inTx(ctx); err != nil {
		return err
	}
	if err := r.s.injected("MarkCompleted"); err != nil {
		return err
	}
	p, ok := r.s.data.payments[id]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if err := p.Complete(split, at); err != nil {
		return err
	}
	r.s.data.payments[id] = p
	return nil
}

func (r paymentRepo) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	if err := inTx(ctx); err != nil {
		return err
	}
	if err := r.s.injected("MarkFailed"); err != nil {
		return err
	}
	if !utf8.ValidString(reason) {
		return ErrInvalidText
	}
	p, ok := r.s.data.payments[id]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	if err := p.Fail(reason, at); err != nil {
		return err
	}
	r.s.data.payments[id] = p
	return nil
}

type balanceRepo struct{ s *Store }

func (r balanceRepo) Credit(ctx context.Context, driverID string, amount decimal.Decimal) (ledger.Balance, error) {
	if err := inTx(ctx); err != nil {
		return ledger.Balance{}, err
	}
	if err := r.s.injected("Credit"); err != nil {
		return ledger.Balance{}, err
	}
	b, ok := r.s.data.balances[driverID]
	if !ok {
		b = ledger.Balance{DriverID: driverID, Amount: decimal.Zero}
	}
	next, err := b.Credit(amount, r.s.now())
	if err != nil {
		return ledger.Balance{}, err
	}
	r.s.data.balances[driverID] = next
	return next, nil
}

func (r balanceRepo) Get(ctx context.Context, driverID string) (*ledger.Balance, error) {
	if err := inTx(ctx); err != nil {
		return nil, err
	}
	b, ok := r.s.data.balances[driverID]
	if !ok {
		return nil, payment.ErrBalanceNotFound
	}
	return &b, nil
}

type tariffRepo struct{ s *Store }

func (r tariffRepo) GetByCity(ctx context.Context, city string) (*ledger.Tariff, error) {
	if err := inTx(ctx); err != nil {
		return nil, err
	}
	t, ok := r.s.data.tariffs[city]
	if !ok {
		return nil, payment.ErrTariffNotFound
	}
	return &t, nil
}

func (r tariffRepo) Upsert(ctx context.Context, t ledger.Tariff) error {
	if err := inTx(ctx); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	r.s.data.tariffs[t.City] = t
	return nil
}

type processedRepo struct{ s *Store }

func (r processedRepo) Exists(ctx context.Context, messageID string) (bool, error) {
	if err := inTx(ctx); err != nil {
		return false, err
	}
	_, ok := r.s.data.processed[messageID]
	return ok, nil
}

func (r processedRepo) Insert(ctx context.Context, messageID string, at time.Time) error {
	if err := inTx(ctx); err != nil {
		return err
	}
	if err := r.s.injected("InsertProcessed"); err != nil {
		return err
	}
	if _, ok := r.s.data.processed[messageID]; !ok {
		r.s.data.processed[messageID] = at
	}
	return nil
}

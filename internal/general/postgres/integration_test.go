package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"ride-settlement/internal/domain/ledger"
	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests talk to a real server and run only when DATABASE_URL is set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func newPayment(t *testing.T, rideID string, createdAt time.Time) *payment.Payment {
	t.Helper()
	p, err := payment.New(uuid.NewString(), payment.Request{
		RideID:      rideID,
		PassengerID: "1",
		DriverID:    "9",
		Amount:      decimal.RequireFromString("25.40"),
		Method:      payment.MethodCard,
		City:        "X",
	})
	require.NoError(t, err)
	p.CreatedAt = createdAt
	return p
}

func TestPaymentRepo_OneOpenPaymentPerRide(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(testPool(t))
	repo := NewPaymentRepo()
	rideID := "ride-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := newPayment(t, rideID, base)
	second := newPayment(t, rideID, base.Add(time.Second))
	third := newPayment(t, rideID, base.Add(2*time.Second))

	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		created, err := repo.Create(ctx, first)
		require.NoError(t, err)
		require.True(t, created)

		created, err = repo.Create(ctx, second)
		require.NoError(t, err)
		require.False(t, created, "a pending payment blocks a second one")

		require.NoError(t, repo.MarkFailed(ctx, first.ID, "declined", base))

		created, err = repo.Create(ctx, third)
		require.NoError(t, err)
		require.True(t, created, "a failed payment frees the ride")

		latest, err := repo.LatestForRide(ctx, rideID)
		require.NoError(t, err)
		require.Equal(t, third.ID, latest.ID)
		require.Equal(t, payment.StatusPending, latest.Status)

		_, err = repo.GetByID(ctx, second.ID)
		require.ErrorIs(t, err, payment.ErrPaymentNotFound)
		return nil
	}))
}

func TestPaymentRepo_LatestForRideOrdering(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(testPool(t))
	repo := NewPaymentRepo()
	rideID := "ride-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		none, err := repo.LatestForRide(ctx, rideID)
		require.NoError(t, err)
		require.Nil(t, none)

		older := newPayment(t, rideID, base)
		_, err = repo.Create(ctx, older)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, older.ID, "first", base))

		newer := newPayment(t, rideID, base.Add(time.Minute))
		_, err = repo.Create(ctx, newer)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, newer.ID, "second", base.Add(time.Minute)))

		latest, err := repo.LatestForRide(ctx, rideID)
		require.NoError(t, err)
		require.Equal(t, newer.ID, latest.ID)
		require.Equal(t, "second", *latest.FailureReason)
		return nil
	}))
}

func TestPaymentRepo_ConditionalTransitions(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(testPool(t))
	repo := NewPaymentRepo()
	p := newPayment(t, "ride-"+uuid.NewString(), time.Now().UTC())
	split := payment.ComputeSplit(p.Amount, decimal.NewFromInt(10), p.Method)

	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		_, err := repo.Create(ctx, p)
		require.NoError(t, err)

		require.NoError(t, repo.MarkCompleted(ctx, p.ID, split, time.Now().UTC()))
		require.ErrorIs(t, repo.MarkCompleted(ctx, p.ID, split, time.Now().UTC()), payment.ErrPaymentNotPending)
		require.ErrorIs(t, repo.MarkFailed(ctx, p.ID, "late", time.Now().UTC()), payment.ErrPaymentNotPending)

		missing := uuid.NewString()
		require.ErrorIs(t, repo.MarkCompleted(ctx, missing, split, time.Now().UTC()), payment.ErrPaymentNotFound)
		require.ErrorIs(t, repo.MarkFailed(ctx, missing, "x", time.Now().UTC()), payment.ErrPaymentNotFound)

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, payment.StatusCompleted, got.Status)
		require.True(t, split.Commission.Equal(got.Commission.Decimal))
		require.True(t, split.DriverAmount.Equal(got.DriverAmount.Decimal))
		require.Nil(t, got.FailureReason)
		return nil
	}))
}

func TestPaymentRepo_ConcurrentCreateKeepsOneOpenPayment(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(testPool(t))
	repo := NewPaymentRepo()
	rideID := "ride-" + uuid.NewString()

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		p := newPayment(t, rideID, time.Now().UTC())
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := uow.WithinTx(ctx, func(ctx context.Context) error {
				ok, err := repo.Create(ctx, p)
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
}

func TestBalanceRepo_ConcurrentCreditsAreNotLost(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(testPool(t))
	repo := NewBalanceRepo()
	driverID := "driver-" + uuid.NewString()

	const n = 25
	credit := decimal.RequireFromString("1.50")

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := uow.WithinTx(ctx, func(ctx context.Context) error {
				_, err := repo.Credit(ctx, driverID, credit)
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var got *ledger.Balance
	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		got, err = repo.Get(ctx, driverID)
		return err
	}))
	require.True(t, decimal.RequireFromString("37.50").Equal(got.Amount), "balance %s", got.Amount)

	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		_, err := repo.Get(ctx, "driver-"+uuid.NewString())
		require.ErrorIs(t, err, payment.ErrBalanceNotFound)
		_, err = repo.Credit(ctx, driverID, decimal.NewFromInt(-1))
		require.ErrorIs(t, err, ledger.ErrNegativeCredit)
		return nil
	}))
}

func TestProcessedMessageRepo_InsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(testPool(t))
	repo := NewProcessedMessageRepo()
	id := uuid.NewString()

	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		seen, err := repo.Exists(ctx, id)
		require.NoError(t, err)
		require.False(t, seen)

		require.NoError(t, repo.Insert(ctx, id, time.Now().UTC()))
		require.NoError(t, repo.Insert(ctx, id, time.Now().UTC()))

		seen, err = repo.Exists(ctx, id)
		require.NoError(t, err)
		require.True(t, seen)
		return nil
	}))
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	uow := NewUnitOfWork(testPool(t))
	repo := NewProcessedMessageRepo()
	id := uuid.NewString()

	err := uow.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Insert(ctx, id, time.Now().UTC()))
		return payment.ErrChargeFailed
	})
	require.ErrorIs(t, err, payment.ErrChargeFailed)

	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		seen, err := repo.Exists(ctx, id)
		require.NoError(t, err)
		require.False(t, seen)
		return nil
	}))
}

func TestTariffRepo_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	var uow ports.UnitOfWork = NewUnitOfWork(testPool(t))
	repo := NewTariffRepo()
	city := "city-" + uuid.NewString()

	require.NoError(t, uow.WithinTx(ctx, func(ctx context.Context) error {
		_, err := repo.GetByCity(ctx, city)
		require.ErrorIs(t, err, payment.ErrTariffNotFound)

		require.NoError(t, repo.Upsert(ctx, ledger.Tariff{City: city, CommissionPercentage: decimal.NewFromInt(10)}))
		require.NoError(t, repo.Upsert(ctx, ledger.Tariff{City: city, CommissionPercentage: decimal.RequireFromString("12.5")}))

		got, err := repo.GetByCity(ctx, city)
		require.NoError(t, err)
		require.True(t, decimal.RequireFromString("12.5").Equal(got.CommissionPercentage))
		return nil
	}))
}

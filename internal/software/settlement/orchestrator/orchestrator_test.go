package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ride-settlement/internal/domain/payment"
	"ride-settlement/internal/domain/saga"
	"ride-settlement/internal/general/contracts"
	"ride-settlement/internal/general/gateway"
	"ride-settlement/internal/general/logger"
	"ride-settlement/internal/general/memory"
	"ride-settlement/internal/general/rabbitmq"
	"ride-settlement/internal/ports"
	"ride-settlement/internal/software/settlement/events"
	"ride-settlement/internal/software/settlement/idempotency"
	"ride-settlement/internal/software/settlement/processor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memory.Store
	pub   *memory.Publisher
	orch  *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	pub := &memory.Publisher{}
	proc := processor.NewPaymentProcessor(processor.Deps{
		Logger:   logger.Discard(),
		UoW:      store,
		Payments: store.PaymentRepo(),
		Balances: store.BalanceRepo(),
		Tariffs:  store.TariffRepo(),
		Guard:    idempotency.NewGuard(logger.Discard(), store, store.ProcessedRepo(), nil),
		Gateway:  gateway.NewFakeGateway(),
		Profiles: gateway.StaticProfile{},
	})
	orch := NewOrchestrator(logger.Discard(), proc, events.NewPublisher(pub), nil, nil, 1)
	return &fixture{store: store, pub: pub, orch: orch}
}

func rideCompleted(t *testing.T, rideID, city string) ports.Delivery {
	t.Helper()
	key, body, err := events.EncodeSaga(saga.RideCompleted{Req: payment.Request{
		RideID:      rideID,
		PassengerID: "1",
		DriverID:    "9",
		Amount:      decimal.NewFromInt(100),
		Method:      payment.MethodCard,
		City:        city,
	}})
	require.NoError(t, err)
	return ports.Delivery{Body: body, RoutingKey: key, Exchange: contracts.ExchangeSaga}
}

func decodeOutcome(t *testing.T, m memory.Published) contracts.SagaMessage {
	t.Helper()
	var msg contracts.SagaMessage
	require.NoError(t, json.Unmarshal(m.Message.Body, &msg))
	return msg
}

func TestHandle_RideCompletedSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedTariff("X", "10")

	require.NoError(t, f.orch.Handle(ctx, rideCompleted(t, "R1", "X")))

	published := f.pub.WithKey(contracts.RouteSagaSuccess)
	require.Len(t, published, 1)
	require.Equal(t, contracts.ExchangeSaga, published[0].Exchange)
	msg := decodeOutcome(t, published[0])
	require.Equal(t, contracts.ID("R1"), msg.SagaID)
	require.Equal(t, "success", msg.Event)
	require.Equal(t, msg.PaymentID+":success", published[0].Message.MessageID)
	require.True(t, decimal.NewFromInt(90).Equal(f.store.BalanceOf("9")))
}

func TestHandle_MissingTariffPublishesFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// the failure is announced, not rethrown
	require.NoError(t, f.orch.Handle(ctx, rideCompleted(t, "R2", "Nowhere")))

	require.Empty(t, f.pub.WithKey(contracts.RouteSagaSuccess))
	failed := f.pub.WithKey(contracts.RouteSagaFailed)
	require.Len(t, failed, 1)
	msg := decodeOutcome(t, failed[0])
	require.Contains(t, msg.Reason, "tariff not found")
	require.True(t, f.store.BalanceOf("9").IsZero())
	require.Equal(t, payment.StatusFailed, f.store.Payments("R2")[0].Status)
}

func TestHandle_ReplayRepublishesWithoutReprocessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedTariff("X", "10")
	d := rideCompleted(t, "R3", "X")

	require.NoError(t, f.orch.Handle(ctx, d))
	d.Redelivered = true
	require.NoError(t, f.orch.Handle(ctx, d))

	published := f.pub.WithKey(contracts.RouteSagaSuccess)
	require.Len(t, published, 2)
	require.Equal(t, published[0].Message.MessageID, published[1].Message.MessageID)
	require.Len(t, f.store.Payments("R3"), 1)
	require.True(t, decimal.NewFromInt(90).Equal(f.store.BalanceOf("9")))
}

func TestHandle_FailedRideIsNotRetriedByReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := rideCompleted(t, "R4", "X")

	require.NoError(t, f.orch.Handle(ctx, d))
	f.store.SeedTariff("X", "10")
	require.NoError(t, f.orch.Handle(ctx, d))

	require.Len(t, f.pub.WithKey(contracts.RouteSagaFailed), 2)
	require.Empty(t, f.pub.WithKey(contracts.RouteSagaSuccess))
	require.Len(t, f.store.Payments("R4"), 1)
}

func TestHandle_OwnOutcomeEventsAreInformational(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedTariff("X", "10")
	require.NoError(t, f.orch.Handle(ctx, rideCompleted(t, "R5", "X")))

	outcome := f.pub.WithKey(contracts.RouteSagaSuccess)[0]
	err := f.orch.Handle(ctx, ports.Delivery{Body: outcome.Message.Body, RoutingKey: outcome.RoutingKey})
	require.NoError(t, err)
	require.Len(t, f.pub.Messages(), 1)
	require.True(t, decimal.NewFromInt(90).Equal(f.store.BalanceOf("9")))
}

func TestHandle_MalformedMessagesAreRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, body := range []string{
		`not json`,
		`{"sagaId":"R6","event":"Unknown","data":{}}`,
		`{"sagaId":"R6","event":"RideCompleted","data":{"rideId":"R6","amount":"-1"}}`,
		`{"sagaId":"R6","event":"process_payment","data":{}}`,
		`{"sagaId":"R6","event":"RideCompleted","data":{"rideId":"R6","passengerId":"1","driverId":"9","amount":"10000000000000","paymentMethod":"card","city":"X"}}`,
	} {
		err := f.orch.Handle(ctx, ports.Delivery{Body: []byte(body)})
		require.Error(t, err, body)
		require.True(t, rabbitmq.IsRejected(err), body)
	}
	require.Empty(t, f.pub.Messages())
}

func TestHandle_NumericIDsAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedTariff("X", "10")

	body := `{"sagaId":42,"event":"RideCompleted","data":{"rideId":42,"passengerId":1,"driverId":9,"amount":100,"paymentMethod":"card","city":"X"}}`
	require.NoError(t, f.orch.Handle(ctx, ports.Delivery{Body: []byte(body)}))
	require.Len(t, f.store.Payments("42"), 1)
	require.Len(t, f.pub.WithKey(contracts.RouteSagaSuccess), 1)
}

func TestHandle_PublishFailureRequeuesAndReplayRecovers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedTariff("X", "10")
	d := rideCompleted(t, "R7", "X")

	f.pub.FailNext(rabbitmq.ErrTransport)
	err := f.orch.Handle(ctx, d)
	require.ErrorIs(t, err, rabbitmq.ErrTransport)
	require.False(t, rabbitmq.IsRejected(err))

	require.NoError(t, f.orch.Handle(ctx, d))
	require.Len(t, f.pub.WithKey(contracts.RouteSagaSuccess), 1)
	require.True(t, decimal.NewFromInt(90).Equal(f.store.BalanceOf("9")))
}

func TestHandle_UnrecordedFailureRequeues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.FailNext("LatestForRide", errors.New("connection refused"))

	err := f.orch.Handle(ctx, rideCompleted(t, "R8", "X"))
	require.Error(t, err)
	require.False(t, rabbitmq.IsRejected(err))
	require.Empty(t, f.pub.Messages())
}

type recordingSubscriber struct {
	queue string
}

func (s *recordingSubscriber) Subscribe(ctx context.Context, queue, _ string, _ int, _ ports.DeliveryHandler) error {
	s.queue = queue
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_SubscribesToSagaQueue(t *testing.T) {
	sub := &recordingSubscriber{}
	orch := NewOrchestrator(logger.Discard(), nil, nil, sub, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, orch.Run(ctx), context.Canceled)
	require.Equal(t, contracts.QueueSagaEvents, sub.queue)
}

// Package telemetry wires the optional New Relic agent. A nil *newrelic.Application is
// valid everywhere and turns instrumentation off.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"ride-settlement/internal/general/config"
	"ride-settlement/internal/ports"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewApplication starts the agent when newrelic.enabled is set and returns nil otherwise.
func NewApplication(cfg *config.Config, service string) (*newrelic.Application, error) {
	if !cfg.NewRelic.Enabled {
		return nil, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.NewRelic.AppName+"-"+service),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(false),
	)
	if err != nil {
		return nil, fmt.Errorf("start new relic: %w", err)
	}
	return app, nil
}

// Shutdown flushes pending data.
func Shutdown(app *newrelic.Application) {
	if app != nil {
		app.Shutdown(10 * time.Second)
	}
}

// WrapConsumer runs every delivery of queue inside a background transaction.
func WrapConsumer(app *newrelic.Application, queue string, next ports.DeliveryHandler) ports.DeliveryHandler {
	if app == nil {
		return next
	}
	return func(ctx context.Context, d ports.Delivery) error {
		txn := app.StartTransaction("consume/" + queue)
		defer txn.End()

		txn.AddAttribute("routingKey", d.RoutingKey)
		txn.AddAttribute("messageId", d.MessageID)
		txn.AddAttribute("redelivered", d.Redelivered)

		err := next(newrelic.NewContext(ctx, txn), d)
		if err != nil {
			txn.NoticeError(err)
		}
		return err
	}
}

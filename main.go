package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ride-settlement/cmd/migrate"
	notificationservice "ride-settlement/cmd/notification_service"
	paymentservice "ride-settlement/cmd/payment_service"
	"ride-settlement/internal/cli"
)

func main() {
	// context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand(cli.Runners{
		Payment:      paymentservice.Run,
		Notification: notificationservice.Run,
		Migrate:      migrate.Run,
	})
	root.SetArgs(cli.NormalizeArgs(os.Args[1:]))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeArgs(t *testing.T) {
	var tests = []struct {
		name string
		in   []string
		want []string
	}{
		{name: "legacy mode flag", in: []string{"--mode=payment", "--max-concurrent=5"}, want: []string{"payment-service", "--max-concurrent=5"}},
		{name: "alias", in: []string{"n", "-c", "x.yaml"}, want: []string{"notification-service", "-c", "x.yaml"}},
		{name: "subcommand untouched", in: []string{"migrate", "--tariffs=t.yaml"}, want: []string{"migrate", "--tariffs=t.yaml"}},
		{name: "flag value is not a mode", in: []string{"-c", "m"}, want: []string{"-c", "m"}},
		{name: "unknown mode passes through", in: []string{"--mode=bogus"}, want: []string{"bogus"}},
		{name: "empty", in: nil, want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NormalizeArgs(tt.in))
		})
	}
}

func TestRootCommand_Dispatch(t *testing.T) {
	var got struct {
		config, tariffs string
		maxConc         int
		notified        bool
	}
	root := NewRootCommand(Runners{
		Payment: func(_ context.Context, configPath string, maxConcurrent int) error {
			got.config, got.maxConc = configPath, maxConcurrent
			return nil
		},
		Notification: func(_ context.Context, configPath string) error {
			got.notified = true
			return nil
		},
		Migrate: func(_ context.Context, configPath, tariffsPath string) error {
			got.config, got.tariffs = configPath, tariffsPath
			return nil
		},
	})

	root.SetArgs(NormalizeArgs([]string{"--mode=payment-service", "--max-concurrent=7", "--config=p.yaml"}))
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Equal(t, "p.yaml", got.config)
	require.Equal(t, 7, got.maxConc)

	root.SetArgs([]string{"migrate", "--tariffs=t.yaml"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Equal(t, "t.yaml", got.tariffs)

	root.SetArgs([]string{"notification-service"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.True(t, got.notified)

	root.SetArgs([]string{"payment-service", "--max-concurrent=0"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

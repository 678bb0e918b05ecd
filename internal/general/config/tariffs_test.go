package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseTariffs(t *testing.T) {
	tariffs, err := ParseTariffs([]byte(`
tariffs:
  - city: Almaty
    commission_percentage: "10"
  - city: Astana
    commission_percentage: "12.5"
`))
	require.NoError(t, err)
	require.Len(t, tariffs, 2)
	require.Equal(t, "Astana", tariffs[1].City)
	require.True(t, decimal.RequireFromString("12.5").Equal(tariffs[1].CommissionPercentage))
}

func TestParseTariffs_Invalid(t *testing.T) {
	var tests = []struct {
		name string
		raw  string
	}{
		{name: "not yaml", raw: "tariffs: [\n"},
		{name: "not a number", raw: "tariffs:\n  - city: X\n    commission_percentage: ten\n"},
		{name: "out of range", raw: "tariffs:\n  - city: X\n    commission_percentage: \"101\"\n"},
		{name: "missing city", raw: "tariffs:\n  - commission_percentage: \"5\"\n"},
		{name: "duplicate city", raw: "tariffs:\n  - city: X\n    commission_percentage: \"5\"\n  - city: X\n    commission_percentage: \"6\"\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTariffs([]byte(tt.raw))
			require.Error(t, err)
		})
	}
}

func TestLoadTariffs_SampleFile(t *testing.T) {
	tariffs, err := LoadTariffs("../../../config/tariffs.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, tariffs)
}

package config

import (
	"fmt"
	"os"
	"strings"

	"ride-settlement/internal/domain/ledger"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type tariffFile struct {
	Tariffs []struct {
		City                 string `yaml:"city"`
		CommissionPercentage string `yaml:"commission_percentage"`
	} `yaml:"tariffs"`
}

// LoadTariffs reads a tariff seed file. Percentages are strings so they parse exactly.
func LoadTariffs(path string) ([]ledger.Tariff, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tariff file: %w", err)
	}
	return ParseTariffs(raw)
}

// ParseTariffs decodes and validates tariff YAML. A city listed twice is an error.
func ParseTariffs(raw []byte) ([]ledger.Tariff, error) {
	var file tariffFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tariff file: %w", err)
	}

	var (
		out      []ledger.Tariff
		problems []string
		seen     = map[string]bool{}
	)
	for i, row := range file.Tariffs {
		pct, err := decimal.NewFromString(strings.TrimSpace(row.CommissionPercentage))
		if err != nil {
			problems = append(problems, fmt.Sprintf("tariffs[%d]: commission_percentage %q is not a number", i, row.CommissionPercentage))
			continue
		}
		t := ledger.Tariff{City: strings.TrimSpace(row.City), CommissionPercentage: pct}
		if err := t.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("tariffs[%d]: %v", i, err))
			continue
		}
		if seen[t.City] {
			problems = append(problems, fmt.Sprintf("tariffs[%d]: city %q listed twice", i, t.City))
			continue
		}
		seen[t.City] = true
		out = append(out, t)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid tariff file: %s", strings.Join(problems, "; "))
	}
	return out, nil
}

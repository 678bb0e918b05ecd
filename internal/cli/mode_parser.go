package cli

import "strings"

const (
	ModePayment      = "payment-service"
	ModeNotification = "notification-service"
	ModeMigrate      = "migrate"
)

// isKnownMode checks if the provided mode name or alias is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModePayment, "payment", "p":
		return ModePayment, true
	case ModeNotification, "notification", "notify", "n":
		return ModeNotification, true
	case ModeMigrate, "m":
		return ModeMigrate, true
	default:
		return "", false
	}
}

// NormalizeArgs rewrites the legacy `--mode=<service>` form and the short aliases into
// the subcommand form understood by the root command, e.g.
//
//	--mode=payment --max-concurrent=50  ->  payment-service --max-concurrent=50
//
// Arguments that are not a mode pass through unchanged.
func NormalizeArgs(args []string) []string {
	var (
		mode string
		out  []string
	)

	for i, arg := range args {
		if after, ok := strings.CutPrefix(arg, "--mode="); ok && mode == "" {
			mode = after
			if m, ok := isKnownMode(after); ok {
				mode = m
			}
			continue
		}

		// only the first positional argument can be a subcommand alias
		if mode == "" && i == 0 && !strings.HasPrefix(arg, "-") {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return out
	}
	return append([]string{mode}, out...)
}

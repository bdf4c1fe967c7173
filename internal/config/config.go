package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the tunable escrow parameters. Everything has a sane default
// so the service runs with no environment set; production overrides via env.
type Config struct {
	ExchangeStakeCents int64         // fixed stake each exchange party locks
	PendingWindow      time.Duration // time a pending task may wait for a match
	DeliveryWindow     time.Duration // advisory deadline for delivery entry
	ConfirmWindow      time.Duration // advisory deadline for confirmations

	HelpMinStakeCents  int64         // floor for requester-chosen help stakes
	HelpAcceptWindow   time.Duration // time an open help task may wait for a helper
	HelpAutoWindow     time.Duration // auto-complete delay after acceptance

	WelcomeBonusCents  int64 // one-time mint on first registration
	ArbitrationFeeBps  int64 // basis points of the pool kept on a split ruling
}

// Load reads overrides from the environment.
func Load() Config {
	return Config{
		ExchangeStakeCents: envInt64("EXCHANGE_STAKE_CENTS", 2000),
		PendingWindow:      envDuration("PENDING_WINDOW", 72*time.Hour),
		DeliveryWindow:     envDuration("DELIVERY_WINDOW", 7*24*time.Hour),
		ConfirmWindow:      envDuration("CONFIRM_WINDOW", 7*24*time.Hour),
		HelpMinStakeCents:  envInt64("HELP_MIN_STAKE_CENTS", 500),
		HelpAcceptWindow:   envDuration("HELP_ACCEPT_WINDOW", 72*time.Hour),
		HelpAutoWindow:     envDuration("HELP_AUTO_WINDOW", 72*time.Hour),
		WelcomeBonusCents:  envInt64("WELCOME_BONUS_CENTS", 5000),
		ArbitrationFeeBps:  envInt64("ARBITRATION_FEE_BPS", 0),
	}
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

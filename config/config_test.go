package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetYaml(t *testing.T) {
	path := writeFile(t, "config.yaml", `
pair: BTC_USDT
target_quantity: "1.5"
price_ceiling: "70000"
testnet: true
orderbook_depth: 10
progress_interval: 15s
shadow_bid:
  size_percent: "20"
  cooldown: 10s
  jitter: 2s
cooldown_taker:
  size_percent: "2.5"
  max_ask_fraction: "0.25"
big_fish:
  min_volume_fraction: "0.4"
  scan_depth: 5
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.Equal(t, "BTC", cfg.Pair.From)
	require.Equal(t, "USDT", cfg.Pair.To)
	require.True(t, cfg.TargetQuantity.Equal(decimal.RequireFromString("1.5")))
	require.True(t, cfg.PriceCeiling.Equal(decimal.NewFromInt(70000)))
	require.True(t, cfg.Testnet)
	require.Equal(t, 10, cfg.OrderBookDepth)
	require.Equal(t, 15*time.Second, cfg.ProgressInterval)

	require.True(t, cfg.ShadowBid.SizePercent.Equal(decimal.NewFromInt(20)))
	require.Equal(t, 10*time.Second, cfg.ShadowBid.Cooldown)
	require.Equal(t, 2*time.Second, cfg.ShadowBid.Jitter)
	require.True(t, cfg.CooldownTaker.SizePercent.Equal(decimal.RequireFromString("2.5")))
	require.True(t, cfg.CooldownTaker.MaxAskFraction.Equal(decimal.RequireFromString("0.25")))
	require.True(t, cfg.BigFish.MinVolumeFraction.Equal(decimal.RequireFromString("0.4")))
	require.Equal(t, 5, cfg.BigFish.ScanDepth)
}

func TestGetYamlDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
pair: ETH_USDT
target_quantity: "10"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	require.True(t, cfg.PriceCeiling.IsZero(), "ceiling disabled when omitted")
	require.Equal(t, defaultOrderBookDepth, cfg.OrderBookDepth)
	require.Equal(t, defaultProgressInterval, cfg.ProgressInterval)
	require.Equal(t, defaultStartStagger, cfg.StartStagger)
	require.Equal(t, defaultStopTimeout, cfg.StopTimeout)
	require.Equal(t, "strategies.yaml", cfg.TogglesPath)
	require.Equal(t, defaultTogglesInterval, cfg.TogglesInterval)

	require.True(t, cfg.ShadowBid.SizePercent.Equal(decimal.NewFromInt(10)))
	require.Equal(t, 30*time.Second, cfg.ShadowBid.Cooldown)
	require.True(t, cfg.CooldownTaker.SizePercent.Equal(decimal.NewFromInt(5)))
	require.True(t, cfg.CooldownTaker.MaxAskFraction.Equal(decimal.RequireFromString("0.5")))
	require.Equal(t, time.Minute, cfg.CooldownTaker.Cooldown)
	require.True(t, cfg.BigFish.MinVolumeFraction.Equal(decimal.RequireFromString("0.3")))
	require.Equal(t, defaultOrderBookDepth, cfg.BigFish.ScanDepth, "scan depth falls back to book depth")
	require.Equal(t, 45*time.Second, cfg.BigFish.Cooldown)
}

func TestGetYamlValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad pair", "pair: BTCUSDT\ntarget_quantity: \"1\"\n"},
		{"missing target", "pair: BTC_USDT\n"},
		{"negative target", "pair: BTC_USDT\ntarget_quantity: \"-1\"\n"},
		{"bad ceiling", "pair: BTC_USDT\ntarget_quantity: \"1\"\nprice_ceiling: \"abc\"\n"},
		{"percent out of range", "pair: BTC_USDT\ntarget_quantity: \"1\"\nshadow_bid:\n  size_percent: \"150\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "config.yaml", tt.content)
			_, err := getYaml(path)
			require.Error(t, err)
		})
	}
}

func TestParsePercent(t *testing.T) {
	v, err := parsePercent("12.5", "p")
	require.NoError(t, err)
	require.True(t, v.Equal(decimal.RequireFromString("12.5")))

	v, err = parsePercent("", "p")
	require.NoError(t, err)
	require.True(t, v.IsZero())

	_, err = parsePercent("-1", "p")
	require.Error(t, err)

	_, err = parsePercent("101", "p")
	require.Error(t, err)
}

func TestLoadToggles(t *testing.T) {
	path := writeFile(t, "strategies.yaml", `
strategies:
  shadow_bid: true
  cooldown_taker: false
`)

	toggles, err := LoadToggles(path)
	require.NoError(t, err)
	require.True(t, toggles[StrategyShadowBid])
	require.False(t, toggles[StrategyCooldownTaker])
	_, present := toggles[StrategyBigFish]
	require.False(t, present)
}

func TestLoadTogglesUnknownStrategy(t *testing.T) {
	path := writeFile(t, "strategies.yaml", `
strategies:
  shadow_bld: true
`)

	_, err := LoadToggles(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "shadow_bld")
}

func TestLoadTogglesMissingFile(t *testing.T) {
	_, err := LoadToggles(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

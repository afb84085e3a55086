package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/stacker/internal/domain"
	"gopkg.in/yaml.v3"
)

// Strategy names as they appear in the toggles file.
const (
	StrategyShadowBid     = "shadow_bid"
	StrategyCooldownTaker = "cooldown_taker"
	StrategyBigFish       = "big_fish"
)

const (
	defaultOrderBookDepth   = 20
	defaultProgressInterval = 30 * time.Second
	defaultTogglesInterval  = 10 * time.Second
	defaultStartStagger     = 3 * time.Second
	defaultStopTimeout      = 10 * time.Second
)

// ShadowBidConfig parameters for the passive maker strategy.
type ShadowBidConfig struct {
	SizePercent decimal.Decimal
	Cooldown    time.Duration
	Jitter      time.Duration
}

// CooldownTakerConfig parameters for the cooldown-gated taker strategy.
type CooldownTakerConfig struct {
	SizePercent    decimal.Decimal
	MaxAskFraction decimal.Decimal
	Cooldown       time.Duration
	Jitter         time.Duration
}

// BigFishConfig parameters for the liquidity-taking strategy.
type BigFishConfig struct {
	MinVolumeFraction decimal.Decimal
	ScanDepth         int
	Cooldown          time.Duration
	Jitter            time.Duration
}

// Config is the static run configuration, fixed for the lifetime of a run.
type Config struct {
	Pair             domain.Pair
	TargetQuantity   decimal.Decimal
	PriceCeiling     decimal.Decimal
	Testnet          bool
	WALDir           string
	WebAddr          string
	OrderBookDepth   int
	ProgressInterval time.Duration
	StartStagger     time.Duration
	StopTimeout      time.Duration
	TogglesPath      string
	TogglesInterval  time.Duration

	ShadowBid     ShadowBidConfig
	CooldownTaker CooldownTakerConfig
	BigFish       BigFishConfig
}

type configTmp struct {
	Pair             string        `yaml:"pair"`
	TargetQuantity   string        `yaml:"target_quantity"`
	PriceCeiling     string        `yaml:"price_ceiling"`
	Testnet          bool          `yaml:"testnet,omitempty"`
	WALDir           string        `yaml:"wal_dir,omitempty"`
	WebAddr          string        `yaml:"web_addr,omitempty"`
	OrderBookDepth   int           `yaml:"orderbook_depth,omitempty"`
	ProgressInterval time.Duration `yaml:"progress_interval,omitempty"`
	StartStagger     time.Duration `yaml:"start_stagger,omitempty"`
	StopTimeout      time.Duration `yaml:"stop_timeout,omitempty"`
	TogglesPath      string        `yaml:"toggles_path,omitempty"`
	TogglesInterval  time.Duration `yaml:"toggles_interval,omitempty"`

	ShadowBid struct {
		SizePercent string        `yaml:"size_percent,omitempty"`
		Cooldown    time.Duration `yaml:"cooldown,omitempty"`
		Jitter      time.Duration `yaml:"jitter,omitempty"`
	} `yaml:"shadow_bid,omitempty"`
	CooldownTaker struct {
		SizePercent    string        `yaml:"size_percent,omitempty"`
		MaxAskFraction string        `yaml:"max_ask_fraction,omitempty"`
		Cooldown       time.Duration `yaml:"cooldown,omitempty"`
		Jitter         time.Duration `yaml:"jitter,omitempty"`
	} `yaml:"cooldown_taker,omitempty"`
	BigFish struct {
		MinVolumeFraction string        `yaml:"min_volume_fraction,omitempty"`
		ScanDepth         int           `yaml:"scan_depth,omitempty"`
		Cooldown          time.Duration `yaml:"cooldown,omitempty"`
		Jitter            time.Duration `yaml:"jitter,omitempty"`
	} `yaml:"big_fish,omitempty"`
}

// Get reads configuration from the --config YAML file or from CLI flags.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	pairFlag := flag.String("pair", "BTC_USDT", "trade pair, example: BTC_USDT")
	targetFlag := flag.String("target", "", "target base asset quantity to accumulate")
	ceilingFlag := flag.String("ceiling", "", "maximum acceptable price, 0 disables the ceiling")
	togglesFlag := flag.String("toggles", "strategies.yaml", "path to strategy toggles file")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	pair, err := getPairFromString(*pairFlag)
	if err != nil {
		return Config{}, fmt.Errorf("invalid --pair provided, --pair=%s", *pairFlag)
	}
	if *targetFlag == "" {
		return Config{}, fmt.Errorf("--target is required when no config file is given")
	}
	target, err := decimal.NewFromString(*targetFlag)
	if err != nil || !target.IsPositive() {
		return Config{}, fmt.Errorf("invalid --target provided, --target=%s", *targetFlag)
	}
	ceiling := decimal.Zero
	if *ceilingFlag != "" {
		ceiling, err = decimal.NewFromString(*ceilingFlag)
		if err != nil {
			return Config{}, fmt.Errorf("invalid --ceiling provided, --ceiling=%s", *ceilingFlag)
		}
	}

	cfg := Config{
		Pair:           pair,
		TargetQuantity: target,
		PriceCeiling:   ceiling,
		TogglesPath:    *togglesFlag,
	}
	applyDefaults(&cfg)

	return cfg, nil
}

func getYaml(path string) (Config, error) {
	var tmp configTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	pair, err := getPairFromString(tmp.Pair)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'pair' param in yaml config: %s, error: %w", tmp.Pair, err)
	}

	target, err := decimal.NewFromString(tmp.TargetQuantity)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'target_quantity' param in yaml config, error: %w", err)
	}
	if !target.IsPositive() {
		return Config{}, fmt.Errorf("'target_quantity' must be positive, got %s", target.String())
	}

	ceiling := decimal.Zero
	if tmp.PriceCeiling != "" {
		ceiling, err = decimal.NewFromString(tmp.PriceCeiling)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'price_ceiling' param in yaml config, error: %w", err)
		}
	}

	cfg := Config{
		Pair:             pair,
		TargetQuantity:   target,
		PriceCeiling:     ceiling,
		Testnet:          tmp.Testnet,
		WALDir:           tmp.WALDir,
		WebAddr:          tmp.WebAddr,
		OrderBookDepth:   tmp.OrderBookDepth,
		ProgressInterval: tmp.ProgressInterval,
		StartStagger:     tmp.StartStagger,
		StopTimeout:      tmp.StopTimeout,
		TogglesPath:      tmp.TogglesPath,
		TogglesInterval:  tmp.TogglesInterval,
	}

	if cfg.ShadowBid.SizePercent, err = parsePercent(tmp.ShadowBid.SizePercent, "shadow_bid.size_percent"); err != nil {
		return Config{}, err
	}
	cfg.ShadowBid.Cooldown = tmp.ShadowBid.Cooldown
	cfg.ShadowBid.Jitter = tmp.ShadowBid.Jitter

	if cfg.CooldownTaker.SizePercent, err = parsePercent(tmp.CooldownTaker.SizePercent, "cooldown_taker.size_percent"); err != nil {
		return Config{}, err
	}
	if tmp.CooldownTaker.MaxAskFraction != "" {
		cfg.CooldownTaker.MaxAskFraction, err = decimal.NewFromString(tmp.CooldownTaker.MaxAskFraction)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'cooldown_taker.max_ask_fraction' param in yaml config, error: %w", err)
		}
	}
	cfg.CooldownTaker.Cooldown = tmp.CooldownTaker.Cooldown
	cfg.CooldownTaker.Jitter = tmp.CooldownTaker.Jitter

	if tmp.BigFish.MinVolumeFraction != "" {
		cfg.BigFish.MinVolumeFraction, err = decimal.NewFromString(tmp.BigFish.MinVolumeFraction)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'big_fish.min_volume_fraction' param in yaml config, error: %w", err)
		}
	}
	cfg.BigFish.ScanDepth = tmp.BigFish.ScanDepth
	cfg.BigFish.Cooldown = tmp.BigFish.Cooldown
	cfg.BigFish.Jitter = tmp.BigFish.Jitter

	applyDefaults(&cfg)

	return cfg, nil
}

func parsePercent(s, param string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", param, err)
	}
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Decimal{}, fmt.Errorf("'%s' must be between 0 and 100, got %s", param, v.String())
	}
	return v, nil
}

func applyDefaults(cfg *Config) {
	if cfg.WALDir == "" {
		cfg.WALDir = "./wal"
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = defaultOrderBookDepth
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if cfg.StartStagger <= 0 {
		cfg.StartStagger = defaultStartStagger
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.TogglesPath == "" {
		cfg.TogglesPath = "strategies.yaml"
	}
	if cfg.TogglesInterval <= 0 {
		cfg.TogglesInterval = defaultTogglesInterval
	}

	if cfg.ShadowBid.SizePercent.IsZero() {
		cfg.ShadowBid.SizePercent = decimal.NewFromInt(10)
	}
	if cfg.ShadowBid.Cooldown <= 0 {
		cfg.ShadowBid.Cooldown = 30 * time.Second
	}
	if cfg.ShadowBid.Jitter <= 0 {
		cfg.ShadowBid.Jitter = 5 * time.Second
	}

	if cfg.CooldownTaker.SizePercent.IsZero() {
		cfg.CooldownTaker.SizePercent = decimal.NewFromInt(5)
	}
	if cfg.CooldownTaker.MaxAskFraction.IsZero() {
		cfg.CooldownTaker.MaxAskFraction = decimal.RequireFromString("0.5")
	}
	if cfg.CooldownTaker.Cooldown <= 0 {
		cfg.CooldownTaker.Cooldown = time.Minute
	}
	if cfg.CooldownTaker.Jitter <= 0 {
		cfg.CooldownTaker.Jitter = 10 * time.Second
	}

	if cfg.BigFish.MinVolumeFraction.IsZero() {
		cfg.BigFish.MinVolumeFraction = decimal.RequireFromString("0.3")
	}
	if cfg.BigFish.ScanDepth <= 0 {
		cfg.BigFish.ScanDepth = cfg.OrderBookDepth
	}
	if cfg.BigFish.Cooldown <= 0 {
		cfg.BigFish.Cooldown = 45 * time.Second
	}
	if cfg.BigFish.Jitter <= 0 {
		cfg.BigFish.Jitter = 5 * time.Second
	}
}

func getPairFromString(pairStr string) (domain.Pair, error) {
	pairElements := strings.Split(pairStr, "_")
	if len(pairElements) != 2 {
		return domain.Pair{}, fmt.Errorf("invalid pair param")
	}
	return domain.Pair{From: pairElements[0], To: pairElements[1]}, nil
}

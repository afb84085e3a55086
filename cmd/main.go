// Command stacker accumulates a target quantity of a base asset on Binance
// spot by running several cooperating strategies against the live order book.
//
// Usage:
//
//	stacker --setup                 (interactive config wizard)
//	stacker --config config.yaml
//	stacker --pair BTC_USDT --target 1.5 --ceiling 100000
//
// Required environment variables: BINANCE_API_KEY, BINANCE_API_SECRET.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/stacker/config"
	"github.com/vadiminshakov/stacker/internal/accumulator"
	"github.com/vadiminshakov/stacker/internal/clients"
	"github.com/vadiminshakov/stacker/internal/events"
	"github.com/vadiminshakov/stacker/internal/exchange"
	"github.com/vadiminshakov/stacker/internal/services/ledger"
	"github.com/vadiminshakov/stacker/internal/services/rules"
	"github.com/vadiminshakov/stacker/internal/setup"
	"github.com/vadiminshakov/stacker/internal/web"
	"go.uber.org/zap"
)

func main() {
	runSetup := flag.Bool("setup", false, "run the interactive configuration wizard")
	only := flag.String("only", "", "run a single strategy standalone, example: shadow_bid")

	cfg, err := config.Get()
	if err != nil {
		if *runSetup {
			if err := setup.RunTUI(); err != nil {
				log.Fatal(err)
			}
			return
		}
		log.Fatal(err)
	}
	if *runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		log.Fatal("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// run in a helper so the ledger's WAL is closed before any exit
	if err := run(cfg, *only, apiKey, apiSecret, logger); err != nil {
		logger.Error("accumulation run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, only, apiKey, apiSecret string, logger *zap.Logger) error {
	client := clients.NewBinanceClient(apiKey, apiSecret, cfg.Testnet)
	gateway := exchange.NewGateway(client, cfg.Pair, logger)
	resolver := rules.NewResolver(gateway, logger)

	led, err := ledger.New(cfg.WALDir, cfg.Pair, logger)
	if err != nil {
		return errors.Wrap(err, "failed to open session ledger")
	}
	defer led.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []accumulator.Option{}
	if only != "" {
		opts = append(opts, accumulator.WithSingleStrategy(only))
	}

	var broadcaster *events.ProgressBroadcaster
	if cfg.WebAddr != "" {
		broadcaster = events.NewProgressBroadcaster(256)
		opts = append(opts, accumulator.WithProgressBroadcaster(broadcaster))

		server := web.NewServer(cfg.WebAddr, broadcaster)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("web server failed", zap.Error(err))
			}
		}()
	}

	return accumulator.New(cfg, gateway, resolver, led, logger, opts...).Run(ctx)
}

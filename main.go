package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inference-gateway/admission"
	"inference-gateway/apiconfig"
	"inference-gateway/computeclient"
	"inference-gateway/internal/event_listener"
	pserver "inference-gateway/internal/server/public"
	"inference-gateway/ledger"
	"inference-gateway/ledgerstore"
	"inference-gateway/liquidity"
	"inference-gateway/logging"

	"github.com/shopspring/decimal"
)

func main() {
	config, err := apiconfig.ReadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	logging.Init(config.LogLevel)

	store, err := ledgerstore.OpenSQLiteStore(config.Store.Path)
	if err != nil {
		logging.Error("Failed to open ledger store", logging.System, "path", config.Store.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	accountLedger := ledger.NewLedger(store)
	client := computeclient.NewClient(config.ChainNode.Url, 30*time.Second)

	manager := liquidity.NewManager(
		client,
		config.Upstream.PoolAddress,
		mustDecimal(config.Upstream.InitialAmount),
		mustDecimal(config.Upstream.RefillThreshold),
		mustDecimal(config.Upstream.RefillAmount),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.EnsureLedgerExists(ctx); err != nil {
		logging.Error("Failed to provision upstream ledger account", logging.System, "error", err)
		os.Exit(1)
	}

	queue := admission.NewQueue(accountLedger, manager, client, admission.Options{
		MaxConcurrent:     config.Queue.MaxConcurrentTasks,
		DrainInterval:     time.Duration(config.Queue.DrainIntervalMs) * time.Millisecond,
		DispatchTimeout:   time.Duration(config.Queue.DispatchTimeoutMs) * time.Millisecond,
		DefaultModel:      config.Queue.DefaultModel,
		FallbackProviders: staticProviders(config.Providers),
	})
	defer queue.Stop()

	listener := event_listener.NewEventListener(config.ChainNode.WebsocketUrl)
	go listener.Start(ctx)

	monitor := liquidity.NewDepositMonitor(manager, listener.Heights(),
		func(fromAddress string, amount decimal.Decimal, reference string) {
			if _, err := accountLedger.Credit(fromAddress, amount, "on-chain deposit", reference); err != nil {
				logging.Error("Failed to credit deposit", logging.Ledger,
					"address", fromAddress, "reference", reference, "error", err)
			}
		})
	go monitor.Run(ctx)

	addr := fmt.Sprintf(":%v", config.Api.PublicServerPort)
	logging.Info("Starting public server", logging.Server, "addr", addr)

	publicServer := pserver.NewServer(queue, accountLedger, manager)
	publicServer.Start(addr)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	logging.Info("Shutting down", logging.System)
	publicServer.Shutdown()
}

func mustDecimal(value string) decimal.Decimal {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		log.Fatalf("Invalid decimal in config: %q: %v", value, err)
	}
	return amount
}

func staticProviders(configs []apiconfig.ProviderConfig) []computeclient.Provider {
	providers := make([]computeclient.Provider, len(configs))
	for i, c := range configs {
		providers[i] = computeclient.Provider{
			Address: c.Address,
			Url:     c.Url,
			Models:  c.Models,
		}
	}
	return providers
}

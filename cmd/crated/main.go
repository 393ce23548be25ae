package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/params"
	"github.com/uhyunpark/cratex/pkg/api"
	"github.com/uhyunpark/cratex/pkg/backend"
	"github.com/uhyunpark/cratex/pkg/basket"
	"github.com/uhyunpark/cratex/pkg/chain"
	"github.com/uhyunpark/cratex/pkg/crypto"
	"github.com/uhyunpark/cratex/pkg/engine"
	"github.com/uhyunpark/cratex/pkg/metrics"
	"github.com/uhyunpark/cratex/pkg/storage"
	"github.com/uhyunpark/cratex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Catalog ----
	catalog, err := basket.LoadCatalog(cfg.Node.CatalogPath)
	if err != nil {
		sugar.Fatalw("catalog_load_failed", "path", cfg.Node.CatalogPath, "err", err)
	}
	sugar.Infow("catalog_loaded", "path", cfg.Node.CatalogPath, "crates", len(catalog.List()))

	// ---- Chain + wallet ----
	signer, err := crypto.FromPrivateKeyHex(cfg.Wallet.PrivateKeyHex)
	if err != nil {
		sugar.Fatalw("wallet_key_invalid", "err", err)
	}
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		sugar.Fatalw("rpc_dial_failed", "rpc", cfg.Chain.RPCURL, "err", err)
	}
	wallet := chain.NewLocalWallet(signer, client)
	wallet.PollInterval = cfg.Chain.ReceiptPollInterval
	wallet.Logger = sugar
	wallet.Approve = processorOnly(cfg.Chain.OrderProcessor)

	// ---- Persistence ----
	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "executions"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()
	journal, err := storage.NewFileJournal(filepath.Join(cfg.Node.DataDir, "journal.log"))
	if err != nil {
		sugar.Fatalw("journal_open_failed", "err", err)
	}
	defer journal.Close()

	// ---- Backend ----
	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.RequestsPerSecond)
	backendClient.Logger = sugar

	// ---- Engine ----
	observer := metrics.NewRecorder()
	executor := engine.NewExecutor(engine.Config{
		OrderProcessor:        cfg.Chain.OrderProcessor,
		PaymentToken:          cfg.Chain.PaymentToken,
		PaymentDecimals:       cfg.Chain.PaymentDecimals,
		PermitWindow:          cfg.Engine.PermitWindow,
		QuoteConcurrency:      cfg.Engine.QuoteConcurrency,
		SellQuoteFailureFatal: cfg.Engine.SellQuoteFailureFatal,
	}, client, backendClient)
	executor.Recorder = engine.MultiRecorder{store, backendClient}
	executor.Journal = journal
	executor.Observer = observer
	executor.Logger = sugar

	tracker := engine.NewTracker(client, cfg.Chain.OrderProcessor, cfg.Engine.PollInterval, cfg.Engine.MaxPolls)
	tracker.Sink = store
	tracker.Observer = observer
	tracker.Logger = sugar

	sugar.Infow("node_starting",
		"chain_id", cfg.Chain.ChainID,
		"wallet", wallet.Address().Hex(),
		"order_processor", cfg.Chain.OrderProcessor.Hex(),
		"payment_token", cfg.Chain.PaymentToken.Hex(),
		"backend", cfg.Backend.BaseURL)

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		Executor:        executor,
		Tracker:         tracker,
		Catalog:         catalog,
		Store:           store,
		Wallet:          wallet,
		AccountID:       cfg.Backend.AccountID,
		ChainID:         cfg.Chain.ChainID,
		PaymentDecimals: cfg.Chain.PaymentDecimals,
		CORSOrigins:     cfg.Node.CORSOrigins,
		SubmitTimeout:   cfg.Engine.SubmitTimeout,
		Logger:          sugar,
	})
	if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
		sugar.Errorw("api_server_stopped", "err", err)
	}
	sugar.Info("node_stopped")
}

// processorOnly refuses to sign transactions to anything but the settlement contract.
func processorOnly(processor common.Address) func(common.Address, []byte) error {
	return func(to common.Address, _ []byte) error {
		if to != processor {
			return fmt.Errorf("refusing to sign for %s", to.Hex())
		}
		return nil
	}
}

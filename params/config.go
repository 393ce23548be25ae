package params

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Chain struct {
	RPCURL          string
	ChainID         *big.Int
	OrderProcessor  common.Address
	PaymentToken    common.Address
	PaymentDecimals int32
	// ReceiptPollInterval paces TransactionReceipt lookups while a batch is pending.
	ReceiptPollInterval time.Duration
}

type Wallet struct {
	PrivateKeyHex string
}

type Backend struct {
	BaseURL           string
	APIKey            string
	AccountID         string
	RequestsPerSecond float64
}

type Engine struct {
	// PermitWindow is added to the latest block timestamp to form permit deadlines.
	PermitWindow     time.Duration
	QuoteConcurrency int
	// SellQuoteFailureFatal aborts a sell when any holding's quote fails.
	// When false the holding is skipped and reported.
	SellQuoteFailureFatal bool
	PollInterval          time.Duration
	MaxPolls              int
	// SubmitTimeout bounds one execution from quote to mined receipt.
	SubmitTimeout         time.Duration
}

type Node struct {
	CatalogPath string
	DataDir     string
	LogFile     string
	LogLevel    string
	APIAddr     string
	CORSOrigins []string
}

type Config struct {
	Chain   Chain
	Wallet  Wallet
	Backend Backend
	Engine  Engine
	Node    Node
}

func Default() Config {
	return Config{
		Chain: Chain{
			RPCURL:              "http://localhost:8545",
			ChainID:             big.NewInt(11155111), // Sepolia
			PaymentDecimals:     6,
			ReceiptPollInterval: 2 * time.Second,
		},
		Backend: Backend{
			BaseURL:           "http://localhost:5000/api",
			RequestsPerSecond: 5,
		},
		Engine: Engine{
			PermitWindow:          300 * time.Second,
			QuoteConcurrency:      4,
			SellQuoteFailureFatal: true,
			PollInterval:          5 * time.Second,
			MaxPolls:              120,
			SubmitTimeout:         10 * time.Minute,
		},
		Node: Node{
			CatalogPath: "crates.yaml",
			DataDir:     "data",
			LogFile:     "data/crated.log",
			LogLevel:    "info",
			APIAddr:     ":8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Chain.RPCURL = getEnv("RPC_URL", cfg.Chain.RPCURL)
	if id := os.Getenv("CHAIN_ID"); id != "" {
		if n, ok := new(big.Int).SetString(id, 10); ok {
			cfg.Chain.ChainID = n
		}
	}
	if addr := os.Getenv("ORDER_PROCESSOR_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Chain.OrderProcessor = common.HexToAddress(addr)
	}
	if addr := os.Getenv("PAYMENT_TOKEN_ADDRESS"); common.IsHexAddress(addr) {
		cfg.Chain.PaymentToken = common.HexToAddress(addr)
	}
	if d := os.Getenv("PAYMENT_TOKEN_DECIMALS"); d != "" {
		if n, err := strconv.Atoi(d); err == nil {
			cfg.Chain.PaymentDecimals = int32(n)
		}
	}
	cfg.Chain.ReceiptPollInterval = getEnvMillis("RECEIPT_POLL_INTERVAL_MS", cfg.Chain.ReceiptPollInterval)

	cfg.Wallet.PrivateKeyHex = os.Getenv("WALLET_PRIVATE_KEY")

	cfg.Backend.BaseURL = strings.TrimRight(getEnv("BACKEND_URL", cfg.Backend.BaseURL), "/")
	cfg.Backend.APIKey = os.Getenv("BACKEND_API_KEY")
	cfg.Backend.AccountID = os.Getenv("BACKEND_ACCOUNT_ID")
	if rps := os.Getenv("BACKEND_RPS"); rps != "" {
		if f, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.Backend.RequestsPerSecond = f
		}
	}

	if sec := os.Getenv("PERMIT_WINDOW_SEC"); sec != "" {
		if n, err := strconv.Atoi(sec); err == nil {
			cfg.Engine.PermitWindow = time.Duration(n) * time.Second
		}
	}
	if n := os.Getenv("QUOTE_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Engine.QuoteConcurrency = v
		}
	}
	if fatal := os.Getenv("QUOTE_FAILURE_FATAL_SELL"); fatal != "" {
		cfg.Engine.SellQuoteFailureFatal = fatal == "true"
	}
	cfg.Engine.PollInterval = getEnvMillis("STATUS_POLL_INTERVAL_MS", cfg.Engine.PollInterval)
	if n := os.Getenv("STATUS_MAX_POLLS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Engine.MaxPolls = v
		}
	}

	if sec := os.Getenv("SUBMIT_TIMEOUT_SEC"); sec != "" {
		if n, err := strconv.Atoi(sec); err == nil {
			cfg.Engine.SubmitTimeout = time.Duration(n) * time.Second
		}
	}

	cfg.Node.CatalogPath = getEnv("CRATE_CATALOG", cfg.Node.CatalogPath)
	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.CORSOrigins = splitList(origins)
	}

	return cfg
}

// Validate reports the first setting that would make the engine unusable.
func (c Config) Validate() error {
	if c.Chain.ChainID == nil || c.Chain.ChainID.Sign() <= 0 {
		return errors.New("CHAIN_ID must be a positive integer")
	}
	if c.Chain.OrderProcessor == (common.Address{}) {
		return errors.New("ORDER_PROCESSOR_ADDRESS is required")
	}
	if c.Chain.PaymentToken == (common.Address{}) {
		return errors.New("PAYMENT_TOKEN_ADDRESS is required")
	}
	if c.Chain.PaymentDecimals < 0 || c.Chain.PaymentDecimals > 36 {
		return fmt.Errorf("PAYMENT_TOKEN_DECIMALS out of range: %d", c.Chain.PaymentDecimals)
	}
	if c.Engine.PermitWindow <= 0 {
		return errors.New("PERMIT_WINDOW_SEC must be positive")
	}
	if c.Engine.QuoteConcurrency <= 0 {
		return errors.New("QUOTE_CONCURRENCY must be positive")
	}
	if c.Engine.PollInterval <= 0 || c.Engine.MaxPolls <= 0 {
		return errors.New("status polling needs a positive interval and poll limit")
	}
	if c.Engine.SubmitTimeout <= 0 {
		return errors.New("SUBMIT_TIMEOUT_SEC must be positive")
	}
	if c.Chain.ReceiptPollInterval <= 0 {
		return errors.New("RECEIPT_POLL_INTERVAL_MS must be positive")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package params

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CHAIN_ID", "8453")
	t.Setenv("ORDER_PROCESSOR_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("PAYMENT_TOKEN_ADDRESS", "0x00000000000000000000000000000000000000bb")
	t.Setenv("STATUS_POLL_INTERVAL_MS", "250")
	t.Setenv("QUOTE_FAILURE_FATAL_SELL", "false")
	t.Setenv("BACKEND_URL", "http://backend/api/")
	t.Setenv("CORS_ORIGINS", "http://a, http://b ,")
	t.Setenv("SUBMIT_TIMEOUT_SEC", "90")

	cfg := LoadFromEnv("testdata/does-not-exist.env")

	if cfg.Chain.ChainID.Int64() != 8453 {
		t.Fatalf("chain id = %v, want 8453", cfg.Chain.ChainID)
	}
	if cfg.Chain.OrderProcessor != common.HexToAddress("0xaa") {
		t.Fatalf("processor = %s", cfg.Chain.OrderProcessor.Hex())
	}
	if cfg.Engine.PollInterval != 250*time.Millisecond {
		t.Fatalf("poll interval = %v, want 250ms", cfg.Engine.PollInterval)
	}
	if cfg.Engine.SubmitTimeout != 90*time.Second {
		t.Fatalf("submit timeout = %v, want 90s", cfg.Engine.SubmitTimeout)
	}
	if cfg.Engine.SellQuoteFailureFatal {
		t.Fatal("sell quote failure should be non-fatal")
	}
	if cfg.Backend.BaseURL != "http://backend/api" {
		t.Fatalf("backend url = %q", cfg.Backend.BaseURL)
	}
	if len(cfg.Node.CORSOrigins) != 2 || cfg.Node.CORSOrigins[1] != "http://b" {
		t.Fatalf("cors origins = %v", cfg.Node.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsMissingAddresses(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing processor address")
	}
	cfg.Chain.OrderProcessor = common.HexToAddress("0x01")
	cfg.Chain.PaymentToken = common.HexToAddress("0x02")
	cfg.Engine.MaxPolls = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero poll limit")
	}
	cfg.Engine.MaxPolls = 1
	cfg.Engine.SubmitTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero submit timeout")
	}
}

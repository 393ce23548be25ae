package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/params"
	"github.com/uhyunpark/cratex/pkg/chain"
	"github.com/uhyunpark/cratex/pkg/contracts"
	"github.com/uhyunpark/cratex/pkg/crypto"
)

func main() {
	cfg := params.LoadFromEnv("")

	tokenFlag := flag.String("token", cfg.Chain.PaymentToken.Hex(), "token contract (permit verifying contract)")
	spenderFlag := flag.String("spender", cfg.Chain.OrderProcessor.Hex(), "spender, normally the order processor")
	valueFlag := flag.String("value", "1000000", "value in smallest units")
	nonceFlag := flag.Int64("nonce", -1, "permit nonce; -1 reads nonces(owner) from the chain")
	nameFlag := flag.String("name", "", "token name; empty reads name() from the chain")
	versionFlag := flag.String("version", "", "token version; empty reads version(), falling back to 1")
	window := flag.Duration("window", 5*time.Minute, "deadline offset from now")
	flag.Parse()

	// Step 1: Load or generate key
	var signer *crypto.Signer
	var err error
	if cfg.Wallet.PrivateKeyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(cfg.Wallet.PrivateKeyHex)
	} else {
		fmt.Println("WALLET_PRIVATE_KEY not set, generating a throwaway key...")
		signer, err = crypto.GenerateKey()
	}
	if err != nil {
		fail("key: %v", err)
	}
	fmt.Printf("Owner: %s\n\n", signer.Address().Hex())

	if !common.IsHexAddress(*tokenFlag) || !common.IsHexAddress(*spenderFlag) {
		fail("token and spender must be hex addresses")
	}
	value, ok := new(big.Int).SetString(*valueFlag, 10)
	if !ok || value.Sign() < 0 {
		fail("invalid value %q", *valueFlag)
	}

	domain := crypto.EIP712Domain{
		Name:              *nameFlag,
		Version:           *versionFlag,
		ChainID:           cfg.Chain.ChainID,
		VerifyingContract: common.HexToAddress(*tokenFlag),
	}
	permit := &crypto.Permit{
		Owner:    signer.Address(),
		Spender:  common.HexToAddress(*spenderFlag),
		Value:    value,
		Nonce:    big.NewInt(*nonceFlag),
		Deadline: big.NewInt(time.Now().Add(*window).Unix()),
	}

	// Step 2: Fill anything not given on the command line from the chain
	if *nonceFlag < 0 || domain.Name == "" || domain.Version == "" {
		readFromChain(cfg, &domain, permit, *nonceFlag < 0)
	}

	// Step 3: Sign the typed data
	typedJSON, err := crypto.PermitToJSON(domain, permit)
	if err != nil {
		fail("typed data: %v", err)
	}
	fmt.Println("Typed data (eth_signTypedData_v4):")
	fmt.Println(typedJSON)
	fmt.Println()

	signature, err := signer.SignTypedData(crypto.PermitTypedData(domain, permit))
	if err != nil {
		fail("sign: %v", err)
	}
	r, s, v, err := crypto.SignatureToRSV(signature)
	if err != nil {
		fail("split signature: %v", err)
	}
	fmt.Printf("Signature: 0x%x\n", signature)
	fmt.Printf("  r: 0x%x\n  s: 0x%x\n  v: %d\n\n", r, s, v)

	// Step 4: Verify
	recovered, err := crypto.RecoverPermitSigner(domain, permit, signature)
	if err != nil {
		fail("recover: %v", err)
	}
	if recovered != permit.Owner {
		fail("signature INVALID: recovered %s", recovered.Hex())
	}
	fmt.Println("Signature VALID")
	fmt.Printf("  Signer: %s\n", recovered.Hex())
}

func readFromChain(cfg params.Config, domain *crypto.EIP712Domain, permit *crypto.Permit, needNonce bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		fail("dial %s: %v", cfg.Chain.RPCURL, err)
	}
	token := domain.VerifyingContract

	if needNonce {
		out, err := client.ReadContract(ctx, contracts.TokenCall(token, contracts.MethodNonces, permit.Owner))
		if err != nil {
			fail("nonces: %v", err)
		}
		permit.Nonce = out[0].(*big.Int)
	}
	if domain.Name == "" {
		out, err := client.ReadContract(ctx, contracts.TokenCall(token, contracts.MethodName))
		if err != nil {
			fail("name: %v", err)
		}
		domain.Name = out[0].(string)
	}
	if domain.Version == "" {
		domain.Version = "1"
		if out, err := client.ReadContract(ctx, contracts.TokenCall(token, contracts.MethodVersion)); err == nil {
			domain.Version = out[0].(string)
		}
	}
}

func fail(format string, args ...interface{}) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

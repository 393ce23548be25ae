package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the domain separator of an ERC-20 token's permit().
// VerifyingContract is the token itself, not the spender.
type EIP712Domain struct {
	Name              string         // token name() (e.g., "USD Coin")
	Version           string         // token version(), "1" when the token has none
	ChainID           *big.Int       // active chain
	VerifyingContract common.Address // token contract
}

// Permit is the EIP-2612 Permit message.
type Permit struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int // unix seconds
}

var permitTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Permit": []apitypes.Type{
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// PermitTypedData builds the eth_signTypedData_v4 payload for a permit.
func PermitTypedData(domain EIP712Domain, permit *Permit) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    permit.Owner.Hex(),
			"spender":  permit.Spender.Hex(),
			"value":    permit.Value.String(),
			"nonce":    permit.Nonce.String(),
			"deadline": permit.Deadline.String(),
		},
	}
}

// HashPermit returns the digest a wallet signs for the permit.
func HashPermit(domain EIP712Domain, permit *Permit) ([]byte, error) {
	typedData := PermitTypedData(domain, permit)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// keccak256("\x19\x01" || domainSeparator || messageHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// RecoverPermitSigner recovers the address that signed a permit.
func RecoverPermitSigner(domain EIP712Domain, permit *Permit, signature []byte) (common.Address, error) {
	hash, err := HashPermit(domain, permit)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash permit: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// VerifyPermitSignature reports whether signature was produced by permit.Owner.
func VerifyPermitSignature(domain EIP712Domain, permit *Permit, signature []byte) (bool, error) {
	signer, err := RecoverPermitSigner(domain, permit, signature)
	if err != nil {
		return false, err
	}
	return signer == permit.Owner, nil
}

// PermitToJSON renders the typed data in the shape MetaMask and other
// wallets accept for eth_signTypedData_v4.
func PermitToJSON(domain EIP712Domain, permit *Permit) (string, error) {
	jsonBytes, err := json.MarshalIndent(PermitTypedData(domain, permit), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

package crypto

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func testDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(11155111),
		VerifyingContract: common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
	}
}

func testPermit(owner common.Address) *Permit {
	return &Permit{
		Owner:    owner,
		Spender:  common.HexToAddress("0xd0d00Ee8457d79C12B4D7429F59e896F11364247"),
		Value:    big.NewInt(500_120_000),
		Nonce:    big.NewInt(7),
		Deadline: big.NewInt(1_760_000_300),
	}
}

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
}

func TestFromPrivateKeyHexAcceptsPrefix(t *testing.T) {
	key, _ := eth_crypto.GenerateKey()
	hexKey := common.Bytes2Hex(eth_crypto.FromECDSA(key))
	want := eth_crypto.PubkeyToAddress(key.PublicKey)

	for _, in := range []string{hexKey, "0x" + hexKey, " 0x" + hexKey + "\n"} {
		signer, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("FromPrivateKeyHex(%q) error = %v", in, err)
		}
		if signer.Address() != want {
			t.Errorf("address = %s, want %s", signer.Address().Hex(), want.Hex())
		}
	}

	if _, err := FromPrivateKeyHex("0xnothex"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestSignUsesEthereumV(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256([]byte("crate"))

	sig, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Errorf("v = %d, want 27 or 28", sig[64])
	}

	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered address = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("expected error for non-32-byte hash")
	}
}

func TestSignatureToRSVRoundTrip(t *testing.T) {
	signer, _ := GenerateKey()
	sig, _ := signer.Sign(eth_crypto.Keccak256([]byte("rsv")))

	r, s, v, err := SignatureToRSV(sig)
	if err != nil {
		t.Fatalf("failed to split signature: %v", err)
	}
	if !bytes.Equal(RSVToSignature(r, s, v), sig) {
		t.Error("reconstructed signature differs from original")
	}

	// 0/1 recovery ids are lifted to 27/28
	raw := append([]byte{}, sig...)
	raw[64] -= 27
	_, _, v2, err := SignatureToRSV(raw)
	if err != nil || v2 != v {
		t.Errorf("v = %d (err %v), want %d", v2, err, v)
	}

	if _, _, _, err := SignatureToRSV([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short signature")
	}
}

func TestPermitSignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()
	domain := testDomain()
	permit := testPermit(signer.Address())

	sig, err := signer.SignTypedData(PermitTypedData(domain, permit))
	if err != nil {
		t.Fatalf("SignTypedData error = %v", err)
	}

	ok, err := VerifyPermitSignature(domain, permit, sig)
	if err != nil {
		t.Fatalf("VerifyPermitSignature error = %v", err)
	}
	if !ok {
		t.Fatal("permit signature did not verify")
	}

	// Any change to the message must break the signature.
	tampered := testPermit(signer.Address())
	tampered.Value = big.NewInt(1)
	ok, _ = VerifyPermitSignature(domain, tampered, sig)
	if ok {
		t.Error("signature verified for tampered value")
	}

	otherChain := testDomain()
	otherChain.ChainID = big.NewInt(1)
	ok, _ = VerifyPermitSignature(otherChain, permit, sig)
	if ok {
		t.Error("signature verified for a different chain")
	}
}

func TestPermitToJSON(t *testing.T) {
	out, err := PermitToJSON(testDomain(), testPermit(common.HexToAddress("0x01")))
	if err != nil {
		t.Fatalf("PermitToJSON error = %v", err)
	}
	for _, want := range []string{`"primaryType": "Permit"`, `"USD Coin"`, `"500120000"`} {
		if !strings.Contains(out, want) {
			t.Errorf("JSON missing %s", want)
		}
	}
}

func TestChecksumHex(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "", false}, // bad checksum
		{"0x1234", "", false},
		{"5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00", "", false},
	}
	for _, tt := range tests {
		got, ok := ChecksumHex(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ChecksumHex(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

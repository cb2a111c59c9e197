package crypto

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	raw[0] = 0xAA
	raw[19] = 0x01

	addr := NewAddress(AccountPrefix, raw)
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != AccountPrefix {
		t.Fatalf("prefix = %q, want %q", decoded.Prefix(), AccountPrefix)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("bytes = %x, want %x", decoded.Bytes(), raw)
	}
}

func TestDecodeAddressRejectsBadInput(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatal("expected error for malformed string")
	}

	// Valid bech32 whose payload is shorter than an address.
	conv, err := bech32.ConvertBits(make([]byte, 10), 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	short, err := bech32.Encode(string(AccountPrefix), conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeAddress(short); err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digest := make([]byte, 32)
	digest[31] = 0x7F
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	recovered, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != key.PubKey().Address().Raw() {
		t.Fatalf("recovered %x, want %x", recovered, key.PubKey().Address().Raw())
	}
}

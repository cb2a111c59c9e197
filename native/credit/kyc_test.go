package credit

import (
	"errors"
	"testing"

	"creditnet/crypto"
)

func newTestRegistry(t *testing.T) (*KycRegistry, *Ledger, *crypto.PrivateKey) {
	t.Helper()
	ledger := NewLedger(newMockStore())
	ledger.SetNowFunc(func() uint64 { return 1_700_000_000 })
	issuerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate issuer key: %v", err)
	}
	registry := NewKycRegistry(ledger)
	registry.SetIssuers([][20]byte{issuerKey.PubKey().Address().Raw()})
	return registry, ledger, issuerKey
}

func signProof(t *testing.T, key *crypto.PrivateKey, subject [20]byte, hash [32]byte, expiry uint64) []byte {
	t.Helper()
	sig, err := key.Sign(proofDigest(subject, hash, expiry))
	if err != nil {
		t.Fatalf("sign proof: %v", err)
	}
	return sig
}

func TestKycProofAccepted(t *testing.T) {
	registry, ledger, issuerKey := newTestRegistry(t)
	subject := testAddr(10)
	var hash [32]byte
	hash[0] = 0xaa
	expiry := uint64(1_700_000_000 + 365*secondsPerDay)

	sig := signProof(t, issuerKey, subject, hash, expiry)
	if err := registry.SubmitProof(subject, hash, expiry, sig); err != nil {
		t.Fatalf("submit proof: %v", err)
	}

	profile, err := ledger.Profile(subject)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !profile.KycVerified {
		t.Fatal("profile not marked verified")
	}
	if profile.KycExpiry != expiry {
		t.Fatalf("expiry = %d, want %d", profile.KycExpiry, expiry)
	}
	if profile.KycIssuer != issuerKey.PubKey().Address().Raw() {
		t.Fatal("issuer address not recorded")
	}
}

func TestKycProofRejectsUnknownIssuer(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	rogueKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate rogue key: %v", err)
	}
	subject := testAddr(11)
	var hash [32]byte
	expiry := uint64(1_700_000_000 + secondsPerDay)

	sig := signProof(t, rogueKey, subject, hash, expiry)
	if err := registry.SubmitProof(subject, hash, expiry, sig); !errors.Is(err, ErrKycUnknownIssuer) {
		t.Fatalf("error = %v, want ErrKycUnknownIssuer", err)
	}
}

func TestKycProofRejectsTamperedFields(t *testing.T) {
	registry, _, issuerKey := newTestRegistry(t)
	subject := testAddr(12)
	var hash [32]byte
	expiry := uint64(1_700_000_000 + secondsPerDay)

	sig := signProof(t, issuerKey, subject, hash, expiry)
	// Replaying the signature for a different subject must not verify as the
	// authorized issuer.
	err := registry.SubmitProof(testAddr(13), hash, expiry, sig)
	if err == nil {
		t.Fatal("tampered subject accepted")
	}
	if !errors.Is(err, ErrKycUnknownIssuer) && !errors.Is(err, ErrKycBadSignature) {
		t.Fatalf("error = %v, want issuer or signature rejection", err)
	}
}

func TestKycProofRejectsExpiredCredential(t *testing.T) {
	registry, _, issuerKey := newTestRegistry(t)
	subject := testAddr(14)
	var hash [32]byte
	expiry := uint64(1_700_000_000 - 1)

	sig := signProof(t, issuerKey, subject, hash, expiry)
	if err := registry.SubmitProof(subject, hash, expiry, sig); !errors.Is(err, ErrKycExpired) {
		t.Fatalf("error = %v, want ErrKycExpired", err)
	}
}

func TestKycProofRequiresConfiguredIssuers(t *testing.T) {
	ledger := NewLedger(newMockStore())
	ledger.SetNowFunc(func() uint64 { return 1_700_000_000 })
	registry := NewKycRegistry(ledger)
	var hash [32]byte
	if err := registry.SubmitProof(testAddr(15), hash, 1_700_000_100, nil); !errors.Is(err, ErrKycNoIssuers) {
		t.Fatalf("error = %v, want ErrKycNoIssuers", err)
	}
}

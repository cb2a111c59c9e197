package credit

import (
	"encoding/binary"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditnet/core/events"
	"creditnet/crypto"
)

var (
	// ErrKycNoIssuers is returned when verification is attempted without any
	// authorized issuer configured.
	ErrKycNoIssuers = errors.New("credit: no kyc issuers authorized")
	// ErrKycUnknownIssuer marks proofs signed by an unauthorized key.
	ErrKycUnknownIssuer = errors.New("credit: issuer not authorized")
	// ErrKycExpired rejects credentials whose expiry is already in the past.
	ErrKycExpired = errors.New("credit: credential expired")
	// ErrKycBadSignature marks malformed or unrecoverable issuer signatures.
	ErrKycBadSignature = errors.New("credit: invalid issuer signature")
)

// KycRegistry verifies hashed credential proofs against an allow-list of
// issuer addresses. Only the credential hash and its expiry touch the ledger;
// the underlying identity document never does.
type KycRegistry struct {
	ledger  *Ledger
	issuers [][20]byte
}

// NewKycRegistry binds a registry to the credit ledger.
func NewKycRegistry(ledger *Ledger) *KycRegistry {
	return &KycRegistry{ledger: ledger}
}

// SetIssuers replaces the authorized issuer set.
func (r *KycRegistry) SetIssuers(issuers [][20]byte) {
	if r == nil {
		return
	}
	r.issuers = append([][20]byte(nil), issuers...)
}

func (r *KycRegistry) authorized(issuer [20]byte) bool {
	for _, candidate := range r.issuers {
		if candidate == issuer {
			return true
		}
	}
	return false
}

// proofDigest binds the subject, credential hash and expiry into the message
// the issuer signs. Any field change invalidates the signature.
func proofDigest(subject [20]byte, credentialHash [32]byte, expiry uint64) []byte {
	buf := make([]byte, 0, 20+32+8)
	buf = append(buf, subject[:]...)
	buf = append(buf, credentialHash[:]...)
	var expiryBytes [8]byte
	binary.BigEndian.PutUint64(expiryBytes[:], expiry)
	buf = append(buf, expiryBytes[:]...)
	return ethcrypto.Keccak256(buf)
}

// SubmitProof validates an issuer-signed credential attestation and, on
// success, flips the subject's KYC flag on the ledger.
func (r *KycRegistry) SubmitProof(subject [20]byte, credentialHash [32]byte, expiry uint64, issuerSig []byte) error {
	if r == nil || r.ledger == nil {
		return errLedgerNotInitialised
	}
	if len(r.issuers) == 0 {
		return ErrKycNoIssuers
	}
	if expiry <= r.ledger.now() {
		return ErrKycExpired
	}
	issuer, err := crypto.RecoverAddress(proofDigest(subject, credentialHash, expiry), issuerSig)
	if err != nil {
		return ErrKycBadSignature
	}
	if !r.authorized(issuer) {
		return ErrKycUnknownIssuer
	}

	profile, err := r.ledger.Profile(subject)
	if err != nil {
		return err
	}
	profile.KycVerified = true
	profile.KycExpiry = expiry
	profile.KycIssuer = issuer
	if err := r.ledger.putProfile(subject, profile); err != nil {
		return err
	}
	r.ledger.emit(events.KycVerified{User: subject, Issuer: issuer, Expiry: expiry})
	return nil
}

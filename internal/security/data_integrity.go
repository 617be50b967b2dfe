// Package security provides cryptographic signing for snapshot responses so
// downstream consumers can verify the data left this service unmodified.
package security

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// DataIntegrityService signs payload digests with a per-process secp256k1 key.
type DataIntegrityService struct {
	privateKey       *ecdsa.PrivateKey
	publicKeyEncoded string
	validity         time.Duration
}

// NewDataIntegrityService generates a fresh signing key. Keys are
// per-process: restarting the service rotates them, which is acceptable
// because signatures only attest to in-flight responses.
func NewDataIntegrityService(validity time.Duration) (*DataIntegrityService, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	publicKey := hex.EncodeToString(crypto.FromECDSAPub(&key.PublicKey))
	service := &DataIntegrityService{
		privateKey:       key,
		publicKeyEncoded: publicKey,
		validity:         validity,
	}

	logrus.Infof("Data integrity service initialized with public key: %s...", publicKey[:16])
	return service, nil
}

// GetPublicKey returns the hex-encoded public key for verification
func (s *DataIntegrityService) GetPublicKey() string {
	return s.publicKeyEncoded
}

// SignedPayload wraps a response with its signature envelope
type SignedPayload struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"public_key"`
	SignedAt  int64           `json:"signed_at"`
	ExpiresAt int64           `json:"expires_at"`
}

// Sign serializes the payload, hashes it and attaches a signature envelope.
func (s *DataIntegrityService) Sign(payload interface{}) (*SignedPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	digest := crypto.Keccak256(raw)
	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	now := time.Now()
	return &SignedPayload{
		Payload:   raw,
		Signature: hex.EncodeToString(signature),
		PublicKey: s.publicKeyEncoded,
		SignedAt:  now.Unix(),
		ExpiresAt: now.Add(s.validity).Unix(),
	}, nil
}

// Verify checks a signed payload against its embedded signature and expiry.
func Verify(signed *SignedPayload) error {
	if time.Now().Unix() > signed.ExpiresAt {
		return fmt.Errorf("signature expired at %d", signed.ExpiresAt)
	}

	signature, err := hex.DecodeString(signed.Signature)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	if len(signature) < 64 {
		return fmt.Errorf("signature too short: %d bytes", len(signature))
	}

	publicKey, err := hex.DecodeString(signed.PublicKey)
	if err != nil {
		return fmt.Errorf("malformed public key: %w", err)
	}

	digest := crypto.Keccak256(signed.Payload)
	// Drop the recovery id byte before verification
	if !crypto.VerifySignature(publicKey, digest, signature[:64]) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

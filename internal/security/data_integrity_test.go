package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	service, err := NewDataIntegrityService(time.Hour)
	require.NoError(t, err)

	payload := map[string]interface{}{
		"network": "movement",
		"tvl":     6_500_000.0,
	}

	signed, err := service.Sign(payload)
	require.NoError(t, err)

	assert.NotEmpty(t, signed.Signature)
	assert.Equal(t, service.GetPublicKey(), signed.PublicKey)
	assert.Greater(t, signed.ExpiresAt, signed.SignedAt)

	assert.NoError(t, Verify(signed))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	service, err := NewDataIntegrityService(time.Hour)
	require.NoError(t, err)

	signed, err := service.Sign(map[string]string{"value": "original"})
	require.NoError(t, err)

	signed.Payload = []byte(`{"value":"tampered"}`)
	assert.Error(t, Verify(signed))
}

func TestVerifyRejectsExpiredSignature(t *testing.T) {
	service, err := NewDataIntegrityService(-time.Minute)
	require.NoError(t, err)

	signed, err := service.Sign(map[string]string{"value": "x"})
	require.NoError(t, err)

	err = Verify(signed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	alice, err := NewDataIntegrityService(time.Hour)
	require.NoError(t, err)
	bob, err := NewDataIntegrityService(time.Hour)
	require.NoError(t, err)

	signed, err := alice.Sign(map[string]string{"value": "x"})
	require.NoError(t, err)

	// Swapping in another service's key must fail verification
	signed.PublicKey = bob.GetPublicKey()
	assert.Error(t, Verify(signed))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	service, err := NewDataIntegrityService(time.Hour)
	require.NoError(t, err)

	signed, err := service.Sign(map[string]string{"value": "x"})
	require.NoError(t, err)

	signed.Signature = "not-hex"
	assert.Error(t, Verify(signed))

	signed.Signature = "abcd"
	assert.Error(t, Verify(signed))
}

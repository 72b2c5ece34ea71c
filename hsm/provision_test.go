package hsm

import (
	"log/slog"
	"testing"

	"github.com/signet-labs/authrepo-signing-backend/cryptoutils"
	"github.com/signet-labs/authrepo-signing-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupGeneratesKeyAndRotatesSecrets(t *testing.T) {
	token := NewFakeToken(42)

	result, err := Setup(token, SetupConfig{
		PIN:        "654321",
		CommonName: "targets-signing-key",
	}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, uint32(42), result.Serial)
	assert.Equal(t, SlotSignature, result.Slot, "signature slot is first in priority")
	assert.Equal(t, 1, token.ResetCount)

	assert.Equal(t, "654321", token.PIN)
	assert.Equal(t, "654321", token.PUK, "PUK defaults to the PIN")
	assert.NotEqual(t, DefaultManagementKey, token.ManagementKey)
	assert.Equal(t, result.ManagementKey, token.ManagementKey)

	cert, err := token.Certificate(SlotSignature)
	require.NoError(t, err)
	assert.Equal(t, "targets-signing-key", cert.Subject.CommonName)
	assert.Equal(t, cert.Subject.String(), cert.Issuer.String())

	// The returned PEM matches the key on the token.
	pub, err := cryptoutils.ParsePublicKeyPEM(result.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&token.Slots[SlotSignature.Key].Priv.PublicKey))
}

func TestSetupImportsCallerKey(t *testing.T) {
	token := NewFakeToken(42)
	key := sharedTestKey(t)

	result, err := Setup(token, SetupConfig{
		PIN:        "654321",
		PUK:        "87654321",
		CommonName: "imported-key",
		Key:        key,
	}, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, "87654321", token.PUK)
	pub, err := cryptoutils.ParsePublicKeyPEM(result.PublicKeyPEM)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))
}

func TestSetupTwiceReplacesKeyMaterial(t *testing.T) {
	token := NewFakeToken(42)
	cfg := SetupConfig{PIN: "654321", CommonName: "rotating-key"}

	first, err := Setup(token, cfg, slog.Default())
	require.NoError(t, err)
	second, err := Setup(token, cfg, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, 2, token.ResetCount)
	assert.NotEqual(t, first.PublicKeyPEM, second.PublicKeyPEM,
		"a second setup must fully replace prior key material")
	assert.NotEqual(t, first.ManagementKey, second.ManagementKey)
}

func TestSetupNoAvailableSlot(t *testing.T) {
	token := NewFakeToken(42)
	token.KeepSlotsOnReset = true
	key := sharedTestKey(t)
	for _, slot := range SlotPriority {
		require.NoError(t, token.Provision(slot, key, "occupied"))
	}

	_, err := Setup(token, SetupConfig{PIN: "654321", CommonName: "cn"}, slog.Default())
	assert.ErrorIs(t, err, interfaces.ErrNoAvailableSlot)
}

func TestSetupConfiguresRetryCounters(t *testing.T) {
	token := NewFakeToken(42)

	_, err := Setup(token, SetupConfig{
		PIN:        "654321",
		CommonName: "cn",
		PINRetries: 8,
		PUKRetries: 8,
	}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 8, token.MaxRetries)
}

func TestSetupValidatesConfig(t *testing.T) {
	token := NewFakeToken(42)

	_, err := Setup(token, SetupConfig{CommonName: "cn"}, slog.Default())
	assert.Error(t, err, "missing PIN")

	_, err = Setup(token, SetupConfig{PIN: "654321"}, slog.Default())
	assert.Error(t, err, "missing common name")
	assert.Equal(t, 0, token.ResetCount, "validation failures must not touch the token")
}

func TestManagementKeyEscrow(t *testing.T) {
	token := NewFakeToken(42)
	result, err := Setup(token, SetupConfig{PIN: "654321", CommonName: "cn"}, slog.Default())
	require.NoError(t, err)

	shares, err := SplitManagementKey(result.ManagementKey, 5, 3)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	recovered, err := CombineManagementKey(shares[:3])
	require.NoError(t, err)
	assert.Equal(t, result.ManagementKey, recovered)

	// Below the threshold the scheme yields a different secret, it cannot
	// detect the shortfall.
	wrong, err := CombineManagementKey(shares[:2])
	if err == nil {
		assert.NotEqual(t, result.ManagementKey, wrong)
	}

	_, err = SplitManagementKey([]byte("short"), 5, 3)
	assert.Error(t, err)
}

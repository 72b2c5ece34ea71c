package cryptoutils

import (
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// sharedTestKey generates one RSA key for the whole package, key
// generation dominates test time otherwise.
func sharedTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := GenerateRSAKey()
		if err != nil {
			t.Fatalf("failed to generate test key: %v", err)
		}
		testKey = key
	})
	return testKey
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key := sharedTestKey(t)

	pubPEM, err := MarshalPublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	assert.Contains(t, string(pubPEM), "BEGIN PUBLIC KEY")

	parsed, err := ParsePublicKeyPEM(pubPEM)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(&key.PublicKey))

	_, err = ParsePublicKeyPEM([]byte("not pem"))
	assert.Error(t, err)
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	key := sharedTestKey(t)

	keyPEM, err := MarshalPrivateKeyPEM(key)
	require.NoError(t, err)

	parsed, err := ParsePrivateKeyPEM(keyPEM)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(key))
}

func TestSignAndVerifyPKCS1v15(t *testing.T) {
	key := sharedTestKey(t)
	payload := []byte(`{"signed":{"version":3}}`)

	sig, err := SignPKCS1v15(key, payload)
	require.NoError(t, err)
	require.NoError(t, VerifyPKCS1v15(&key.PublicKey, payload, sig))

	assert.Error(t, VerifyPKCS1v15(&key.PublicKey, []byte("tampered"), sig))
}

func TestSelfSignedRSACertificate(t *testing.T) {
	key := sharedTestKey(t)

	cert, err := SelfSignedRSACertificate(key, "targets-signing-key", 365)
	require.NoError(t, err)

	assert.Equal(t, "targets-signing-key", cert.Subject.CommonName)
	assert.Equal(t, cert.Subject.String(), cert.Issuer.String(), "certificate must be self-signed")
	assert.WithinDuration(t, time.Now(), cert.NotBefore, time.Minute)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 365), cert.NotAfter, time.Minute)

	keyPEM, err := MarshalPrivateKeyPEM(key)
	require.NoError(t, err)
	require.NoError(t, VerifyCertificate(keyPEM, CertificatePEM(cert), "targets-signing-key"))
	assert.Error(t, VerifyCertificate(keyPEM, CertificatePEM(cert), "wrong-cn"))
}

func TestSealAndOpenPrivateKey(t *testing.T) {
	key := sharedTestKey(t)

	sealed, err := SealPrivateKey(key, []byte("correct horse"))
	require.NoError(t, err)

	opened, err := OpenPrivateKey(sealed, []byte("correct horse"))
	require.NoError(t, err)
	assert.True(t, opened.Equal(key))

	_, err = OpenPrivateKey(sealed, []byte("wrong passphrase"))
	assert.Error(t, err)

	_, err = OpenPrivateKey([]byte{0x00}, []byte("correct horse"))
	assert.Error(t, err, "truncated input")
}

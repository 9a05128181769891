package software

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/synckit/pkg/crypto"
)

func TestProvider_DeriveSessionKey_Symmetric(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)
	crossRegister(t, a, b)

	// Обе стороны выводят один и тот же ключ независимо от направления
	keyAB, err := a.DeriveSessionKey(b.LocalDID())
	require.NoError(t, err)
	assert.Len(t, keyAB, KeySize)

	keyBA, err := b.DeriveSessionKey(a.LocalDID())
	require.NoError(t, err)
	assert.Equal(t, keyAB, keyBA, "session key must be direction-independent")

	// Ключ стабилен между вызовами
	again, err := a.DeriveSessionKey(b.LocalDID())
	require.NoError(t, err)
	assert.Equal(t, keyAB, again)
}

func TestProvider_DeriveSessionKey_Errors(t *testing.T) {
	a := createTestProvider(t)

	_, err := a.DeriveSessionKey("did:sync:nobody")
	assert.ErrorIs(t, err, crypto.ErrUnknownPeer)

	_, err = New().DeriveSessionKey("did:sync:nobody")
	assert.ErrorIs(t, err, crypto.ErrNotInitialized)
}

func TestProvider_SymmetricRoundTrip(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)
	crossRegister(t, a, b)

	key, err := a.DeriveSessionKey(b.LocalDID())
	require.NoError(t, err)

	plaintext := []byte(`{"resource":"users/42","state":"synced"}`)
	env, err := a.EncryptSymmetric(plaintext, key)
	require.NoError(t, err)
	require.NotNil(t, env)

	assert.Equal(t, crypto.AlgorithmAESGCM, env.Algorithm)
	assert.Len(t, env.IV, NonceSize)
	assert.Len(t, env.Tag, TagSize)
	assert.Empty(t, env.EphemeralPublicKey, "symmetric envelope carries no ephemeral key")
	assert.NotEqual(t, plaintext, env.Ciphertext)

	// Пир расшифровывает своим экземпляром того же сессионного ключа
	peerKey, err := b.DeriveSessionKey(a.LocalDID())
	require.NoError(t, err)

	decrypted, err := b.DecryptSymmetric(env, peerKey)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestProvider_DecryptSymmetric_Errors(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)
	crossRegister(t, a, b)

	key, err := a.DeriveSessionKey(b.LocalDID())
	require.NoError(t, err)

	env, err := a.EncryptSymmetric([]byte("secret"), key)
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := a.DecryptSymmetric(env, make([]byte, KeySize))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decrypt")
	})

	t.Run("tampered tag", func(t *testing.T) {
		tampered := *env
		tampered.Tag = append([]byte(nil), env.Tag...)
		tampered.Tag[0] ^= 0xFF

		_, err := a.DecryptSymmetric(&tampered, key)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decrypt")
	})

	t.Run("algorithm mismatch", func(t *testing.T) {
		wrong := *env
		wrong.Algorithm = crypto.AlgorithmECIES

		_, err := a.DecryptSymmetric(&wrong, key)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected algorithm")
	})

	t.Run("nil envelope", func(t *testing.T) {
		_, err := a.DecryptSymmetric(nil, key)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encrypted payload cannot be nil")
	})

	t.Run("empty plaintext rejected on encrypt", func(t *testing.T) {
		_, err := a.EncryptSymmetric(nil, key)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "plaintext cannot be empty")
	})
}

func TestProvider_ECIES_RoundTrip(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)
	crossRegister(t, a, b)

	plaintext := []byte("replica payload addressed to b")
	env, err := a.EncryptFor(plaintext, b.LocalDID())
	require.NoError(t, err)
	require.NotNil(t, env)

	assert.Equal(t, crypto.AlgorithmECIES, env.Algorithm)
	assert.Len(t, env.EphemeralPublicKey, 32)
	assert.Len(t, env.IV, NonceSize)
	assert.Len(t, env.Tag, TagSize)

	decrypted, err := b.DecryptFrom(env)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestProvider_ECIES_WrongRecipient(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)
	c := createTestProvider(t)
	crossRegister(t, a, b)

	env, err := a.EncryptFor([]byte("for b only"), b.LocalDID())
	require.NoError(t, err)

	// Третья сторона выводит другой общий секрет и не проходит GCM-проверку
	_, err = c.DecryptFrom(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt")

	// Отправитель тоже не может расшифровать собственный конверт
	_, err = a.DecryptFrom(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decrypt")
}

func TestProvider_ECIES_Errors(t *testing.T) {
	a := createTestProvider(t)

	_, err := a.EncryptFor([]byte("data"), "did:sync:nobody")
	assert.ErrorIs(t, err, crypto.ErrUnknownPeer)

	_, err = New().DecryptFrom(&crypto.EncryptedPayload{Algorithm: crypto.AlgorithmECIES})
	assert.ErrorIs(t, err, crypto.ErrNotInitialized)

	_, err = a.DecryptFrom(&crypto.EncryptedPayload{Algorithm: crypto.AlgorithmAESGCM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected algorithm")

	_, err = a.DecryptFrom(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted payload cannot be nil")
}

func TestProvider_Encrypt_Randomness(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)
	crossRegister(t, a, b)

	plaintext := []byte("same data")

	// Одинаковый plaintext шифруется по-разному из-за случайного nonce
	key, err := a.DeriveSessionKey(b.LocalDID())
	require.NoError(t, err)

	sym1, err := a.EncryptSymmetric(plaintext, key)
	require.NoError(t, err)
	sym2, err := a.EncryptSymmetric(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, sym1.Ciphertext, sym2.Ciphertext)

	// ECIES дополнительно использует свежий эфемерный ключ на каждый вызов
	ecies1, err := a.EncryptFor(plaintext, b.LocalDID())
	require.NoError(t, err)
	ecies2, err := a.EncryptFor(plaintext, b.LocalDID())
	require.NoError(t, err)
	assert.NotEqual(t, ecies1.EphemeralPublicKey, ecies2.EphemeralPublicKey)
	assert.NotEqual(t, ecies1.Ciphertext, ecies2.Ciphertext)
}

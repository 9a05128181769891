package software

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/synckit/pkg/crypto"
)

func TestKeystore_SaveLoadRoundTrip(t *testing.T) {
	p := createTestProvider(t)
	path := filepath.Join(t.TempDir(), "keystore.json")

	require.NoError(t, p.SaveKeystore(path, "correct horse battery staple"))

	// Файл создается с правами только для владельца
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadKeystore(path, "correct horse battery staple")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.True(t, loaded.IsInitialized())
	assert.Equal(t, p.LocalDID(), loaded.LocalDID(), "DID must survive the round trip")

	// Загруженная идентичность подписывает, оригинальная проверяет
	data := []byte("signed after reload")
	signature, err := loaded.Sign(data)
	require.NoError(t, err)

	ok, err := p.Verify(data, signature, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeystore_WrongPassphrase(t *testing.T) {
	p := createTestProvider(t)
	path := filepath.Join(t.TempDir(), "keystore.json")

	require.NoError(t, p.SaveKeystore(path, "right"))

	_, err := LoadKeystore(path, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong passphrase")
}

func TestKeystore_SaveErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")

	// Пустая passphrase недопустима
	p := createTestProvider(t)
	err := p.SaveKeystore(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passphrase cannot be empty")

	// Без идентичности сохранять нечего
	err = New().SaveKeystore(path, "secret")
	assert.ErrorIs(t, err, crypto.ErrNotInitialized)
}

func TestKeystore_LoadErrors(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadKeystore(filepath.Join(tmpDir, "absent.json"), "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read keystore")
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(tmpDir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		_, err := LoadKeystore(path, "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse keystore")
	})

	t.Run("unsupported version", func(t *testing.T) {
		path := filepath.Join(tmpDir, "version.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":99}`), 0o600))

		_, err := LoadKeystore(path, "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported keystore version")
	})

	t.Run("missing data block", func(t *testing.T) {
		path := filepath.Join(tmpDir, "nodata.json")
		raw, err := json.Marshal(keystoreFile{
			Salt:    make([]byte, SaltSize),
			Version: keystoreVersion,
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw, 0o600))

		_, err = LoadKeystore(path, "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no encrypted data block")
	})
}

func TestKeystore_SaveCreatesDirectory(t *testing.T) {
	p := createTestProvider(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", "keystore.json")

	require.NoError(t, p.SaveKeystore(path, "secret"))

	loaded, err := LoadKeystore(path, "secret")
	require.NoError(t, err)
	assert.Equal(t, p.LocalDID(), loaded.LocalDID())
}

package software

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	"github.com/iudanet/synckit/pkg/crypto"
)

// Параметры Argon2id для ключа keystore.
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// SaltSize - размер соли в байтах
	SaltSize = 32

	// keystoreVersion - версия формата файла keystore
	keystoreVersion = 1
)

// keystoreFile - формат файла keystore на диске. Приватные ключи лежат
// в Data, зашифрованные ключом из passphrase через Argon2id.
type keystoreFile struct {
	Data    *crypto.EncryptedPayload `json:"data"`
	DID     string                   `json:"did"`
	Salt    []byte                   `json:"salt"`
	Version int                      `json:"version"`
}

// keystoreSecrets - приватная часть идентичности внутри шифрованного блока.
type keystoreSecrets struct {
	SigningKey    []byte `json:"signingKey"`
	EncryptionKey []byte `json:"encryptionKey"`
}

// SaveKeystore сохраняет локальную идентичность в файл, защищенный
// passphrase. Файл создается с правами 0600.
func (p *Provider) SaveKeystore(path, passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase cannot be empty")
	}

	p.mu.RLock()
	signingKey := p.signingKey
	encryptionKey := p.encryptionKey
	did := p.did
	p.mu.RUnlock()

	if signingKey == nil || encryptionKey == nil {
		return crypto.ErrNotInitialized
	}

	secrets, err := json.Marshal(keystoreSecrets{
		SigningKey:    signingKey,
		EncryptionKey: encryptionKey.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize)
	data, err := sealAESGCM(secrets, key, crypto.AlgorithmAESGCM, nil)
	if err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	file, err := json.MarshalIndent(keystoreFile{
		Data:    data,
		DID:     did,
		Salt:    salt,
		Version: keystoreVersion,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create keystore directory: %w", err)
		}
	}
	if err := os.WriteFile(path, file, 0o600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}

	return nil
}

// LoadKeystore загружает идентичность из файла keystore, созданного
// SaveKeystore. Неверная passphrase проявляется как ошибка расшифровки.
func LoadKeystore(path, passphrase string) (*Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keystore: %w", err)
	}
	if file.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported keystore version: %d", file.Version)
	}
	if len(file.Salt) != SaltSize {
		return nil, fmt.Errorf("keystore salt must be %d bytes, got %d", SaltSize, len(file.Salt))
	}
	if file.Data == nil {
		return nil, fmt.Errorf("keystore has no encrypted data block")
	}

	key := argon2.IDKey([]byte(passphrase), file.Salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize)
	secretsJSON, err := openAESGCM(file.Data, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore (wrong passphrase?): %w", err)
	}

	var secrets keystoreSecrets
	if err := json.Unmarshal(secretsJSON, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse keystore secrets: %w", err)
	}
	if len(secrets.SigningKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d",
			ed25519.PrivateKeySize, len(secrets.SigningKey))
	}

	encryptionKey, err := ecdh.X25519().NewPrivateKey(secrets.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	signingKey := ed25519.PrivateKey(secrets.SigningKey)
	signingPub, ok := signingKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid signing key material")
	}

	did := DeriveDID(signingPub)
	if file.DID != "" && file.DID != did {
		return nil, fmt.Errorf("keystore DID mismatch: file says %s, keys say %s", file.DID, did)
	}

	p := New()
	p.signingKey = signingKey
	p.signingPub = signingPub
	p.encryptionKey = encryptionKey
	p.did = did

	return p, nil
}

package software

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/iudanet/synckit/pkg/crypto"
)

const (
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
	// KeySize - размер симметричного ключа AES-256
	KeySize = 32
	// TagSize - размер тега аутентификации GCM
	TagSize = 16
)

// Context strings для HKDF: сессионные и эфемерные ключи независимы.
const (
	sessionKeyInfo = "synckit session key v1"
	eciesKeyInfo   = "synckit ecies v1"
)

// DeriveSessionKey выводит стабильный симметричный ключ, общий с пиром:
// X25519 ECDH на статических ключах + HKDF-SHA256. Обе стороны получают
// один и тот же ключ независимо от направления.
func (p *Provider) DeriveSessionKey(peerDID string) ([]byte, error) {
	p.mu.RLock()
	encryptionKey := p.encryptionKey
	localDID := p.did
	p.mu.RUnlock()

	if encryptionKey == nil {
		return nil, crypto.ErrNotInitialized
	}

	peerPub, err := p.encryptionKeyFor(peerDID)
	if err != nil {
		return nil, err
	}

	shared, err := encryptionKey.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	// Соль из отсортированной пары DID: ключ симметричен для обеих сторон
	lo, hi := localDID, peerDID
	if hi < lo {
		lo, hi = hi, lo
	}
	salt := sha256.Sum256([]byte(lo + "|" + hi))

	return deriveKey(shared, salt[:], []byte(sessionKeyInfo))
}

// EncryptSymmetric шифрует данные сессионным ключом AES-256-GCM.
func (p *Provider) EncryptSymmetric(data, key []byte) (*crypto.EncryptedPayload, error) {
	return sealAESGCM(data, key, crypto.AlgorithmAESGCM, nil)
}

// DecryptSymmetric расшифровывает симметричный конверт сессионным ключом.
func (p *Provider) DecryptSymmetric(env *crypto.EncryptedPayload, key []byte) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("encrypted payload cannot be nil")
	}
	if env.Algorithm != crypto.AlgorithmAESGCM {
		return nil, fmt.Errorf("unexpected algorithm: %s", env.Algorithm)
	}
	return openAESGCM(env, key)
}

// EncryptFor шифрует данные для получателя по схеме ECIES: эфемерный
// X25519-ключ, ECDH с публичным ключом получателя, HKDF, AES-256-GCM.
// Расшифровать результат может только владелец приватного ключа получателя.
func (p *Provider) EncryptFor(data []byte, recipientDID string) (*crypto.EncryptedPayload, error) {
	peerPub, err := p.encryptionKeyFor(recipientDID)
	if err != nil {
		return nil, err
	}

	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	ephemeralPub := ephemeral.PublicKey().Bytes()
	key, err := deriveKey(shared, nil, eciesInfo(ephemeralPub, peerPub.Bytes()))
	if err != nil {
		return nil, err
	}

	return sealAESGCM(data, key, crypto.AlgorithmECIES, ephemeralPub)
}

// DecryptFrom расшифровывает ECIES-конверт, адресованный локальной
// идентичности.
func (p *Provider) DecryptFrom(env *crypto.EncryptedPayload) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("encrypted payload cannot be nil")
	}
	if env.Algorithm != crypto.AlgorithmECIES {
		return nil, fmt.Errorf("unexpected algorithm: %s", env.Algorithm)
	}

	p.mu.RLock()
	encryptionKey := p.encryptionKey
	p.mu.RUnlock()

	if encryptionKey == nil {
		return nil, crypto.ErrNotInitialized
	}

	ephemeralPub, err := ecdh.X25519().NewPublicKey(env.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral public key: %w", err)
	}

	shared, err := encryptionKey.ECDH(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	localPub := encryptionKey.PublicKey().Bytes()
	key, err := deriveKey(shared, nil, eciesInfo(env.EphemeralPublicKey, localPub))
	if err != nil {
		return nil, err
	}

	return openAESGCM(env, key)
}

// deriveKey выводит 32-байтный ключ через HKDF-SHA256.
func deriveKey(secret, salt, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// eciesInfo связывает производный ключ с парой ключей обмена.
func eciesInfo(ephemeralPub, recipientPub []byte) []byte {
	info := make([]byte, 0, len(eciesKeyInfo)+len(ephemeralPub)+len(recipientPub))
	info = append(info, eciesKeyInfo...)
	info = append(info, ephemeralPub...)
	info = append(info, recipientPub...)
	return info
}

// sealAESGCM шифрует данные AES-256-GCM и раскладывает результат
// по полям конверта: nonce в iv, шифротекст в ct, тег аутентификации в tag.
func sealAESGCM(plaintext, key []byte, algorithm string, ephemeralPub []byte) (*crypto.EncryptedPayload, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext cannot be empty")
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM добавляет authentication tag в конец шифротекста
	sealed := aesGCM.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize

	return &crypto.EncryptedPayload{
		Algorithm:          algorithm,
		Ciphertext:         sealed[:split],
		IV:                 nonce,
		Tag:                sealed[split:],
		EphemeralPublicKey: ephemeralPub,
	}, nil
}

// openAESGCM расшифровывает конверт и проверяет тег аутентификации.
func openAESGCM(env *crypto.EncryptedPayload, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(env.IV) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(env.IV))
	}
	if len(env.Tag) != TagSize {
		return nil, fmt.Errorf("auth tag must be %d bytes, got %d", TagSize, len(env.Tag))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := aesGCM.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: authentication failed or corrupted data: %w", err)
	}

	return plaintext, nil
}

// Package crypto определяет криптографическую capability, потребляемую
// ядром синхронизации. Ядро не реализует криптографию само: host-приложение
// передает реализацию Provider (или не передает ничего и получает
// разрешающий NoopProvider).
package crypto

import (
	"context"
	"encoding/json"
	"time"
)

// Алгоритмы шифрования, допустимые в EncryptedPayload.
const (
	// AlgorithmECIES асимметричное шифрование: эфемерный X25519 + HKDF + AES-256-GCM
	AlgorithmECIES = "ecies-x25519-aes256gcm"
	// AlgorithmAESGCM симметричное шифрование сессионным ключом AES-256-GCM
	AlgorithmAESGCM = "aes256gcm"
)

// PublicIdentity публичная часть криптографической идентичности узла.
type PublicIdentity struct {
	DID           string `json:"did"`           // DID декентрализованный идентификатор
	SigningKey    []byte `json:"signingKey"`    // SigningKey публичный ключ подписи (Ed25519)
	EncryptionKey []byte `json:"encryptionKey"` // EncryptionKey публичный ключ шифрования (X25519)
}

// EncryptedPayload конверт шифрованных данных.
// Имена полей фиксированы wire-форматом (ct, iv, tag, epk).
type EncryptedPayload struct {
	Algorithm          string `json:"alg"`           // Algorithm идентификатор алгоритма
	Ciphertext         []byte `json:"ct"`            // Ciphertext шифротекст без auth tag
	IV                 []byte `json:"iv"`            // IV вектор инициализации (nonce)
	Tag                []byte `json:"tag"`           // Tag тег аутентификации GCM
	EphemeralPublicKey []byte `json:"epk,omitempty"` // EphemeralPublicKey эфемерный ключ (только ECIES)
}

// SignedEnvelope подписанная структура: каноническая полезная нагрузка
// плюс подпись и идентичность подписавшего.
type SignedEnvelope struct {
	SignedAt  time.Time       `json:"signedAt"`  // SignedAt время подписания
	SignerDID string          `json:"signerDid"` // SignerDID DID подписавшего
	Payload   json.RawMessage `json:"payload"`   // Payload каноническая форма подписанного значения
	Signature []byte          `json:"signature"` // Signature подпись над Payload
}

// TokenVerification результат проверки capability-токена.
// Проверка никогда не возвращает error: решение о реакции на отказ
// остается за вызывающей стороной.
type TokenVerification struct {
	IssuerDID    string   `json:"issuerDid,omitempty"`    // IssuerDID DID выдавшего токен
	AudienceDID  string   `json:"audienceDid,omitempty"`  // AudienceDID DID адресата токена
	Error        string   `json:"error,omitempty"`        // Error причина отказа
	Capabilities []string `json:"capabilities,omitempty"` // Capabilities заявленные токеном capabilities
	Authorized   bool     `json:"authorized"`             // Authorized токен валиден и покрывает требования
}

// Provider определяет криптографическую capability ядра синхронизации.
// Все операции, кроме проверочных, требуют инициализированной идентичности.
type Provider interface {
	// IsInitialized reports whether the provider holds a usable local identity
	IsInitialized() bool

	// LocalDID returns the DID of the local identity, or "" when absent
	LocalDID() string

	// GenerateIdentity creates a fresh local identity and returns its public part
	GenerateIdentity(ctx context.Context) (*PublicIdentity, error)

	// ExportPublicIdentity returns the public part of the local identity
	ExportPublicIdentity() (*PublicIdentity, error)

	// RegisterPeerKeys stores a peer's public keys for later verification
	// and encryption addressed to that peer
	RegisterPeerKeys(did string, signingKey, encryptionKey []byte) error

	// Sign signs raw bytes with the local signing key
	Sign(data []byte) ([]byte, error)

	// Verify checks a signature over data against the claimed signer's
	// known public key
	Verify(data, signature []byte, signerDID string) (bool, error)

	// VerifyWithKey checks a signature over data against explicit public
	// key material, bypassing the peer registry. Needed during handshakes,
	// when the peer's keys arrive inside the payload being verified
	VerifyWithKey(data, signature, publicKey []byte) (bool, error)

	// SignEnvelope canonicalizes a value and signs it, producing a
	// self-describing signed envelope
	SignEnvelope(v any) (*SignedEnvelope, error)

	// VerifyEnvelope checks a signed envelope against its claimed signer
	VerifyEnvelope(env *SignedEnvelope) (bool, error)

	// EncryptFor encrypts data so only the recipient DID can read it
	// (ephemeral-key ECIES)
	EncryptFor(data []byte, recipientDID string) (*EncryptedPayload, error)

	// DecryptFrom decrypts an ECIES envelope addressed to the local identity
	DecryptFrom(env *EncryptedPayload) ([]byte, error)

	// DeriveSessionKey derives a stable symmetric key shared with the peer
	DeriveSessionKey(peerDID string) ([]byte, error)

	// EncryptSymmetric encrypts data with a derived session key
	EncryptSymmetric(data, key []byte) (*EncryptedPayload, error)

	// DecryptSymmetric decrypts a symmetric envelope with a derived session key
	DecryptSymmetric(env *EncryptedPayload, key []byte) ([]byte, error)

	// IssueToken mints a capability token for the audience DID ("*" for any)
	IssueToken(audienceDID string, capabilities []string, ttl time.Duration) (string, error)

	// VerifyToken checks a capability token against a required capability set
	VerifyToken(token string, required []string) *TokenVerification

	// DelegateToken issues a child token bounded by the parent's capabilities
	DelegateToken(parentToken, audienceDID string, capabilities []string) (string, error)

	// HashContent returns the hex content hash of data
	HashContent(data []byte) (string, error)

	// RandomBytes returns n cryptographically random bytes
	RandomBytes(n int) ([]byte, error)
}

// Package software реализует crypto.Provider на программных ключах:
// Ed25519 для подписей, X25519 для обмена ключами, AES-256-GCM для
// шифрования и JWT (EdDSA) для capability-токенов. Ключи живут в памяти
// и опционально сохраняются в keystore, защищенный passphrase.
package software

import (
	"context"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/iudanet/synckit/internal/canonical"
	"github.com/iudanet/synckit/pkg/crypto"
)

func nowUTC() time.Time { return time.Now().UTC() }

const (
	// DIDPrefix - схема декентрализованных идентификаторов модуля
	DIDPrefix = "did:sync:"
	// DIDHashBytes - количество байт SHA256-хеша ключа подписи в DID
	DIDHashBytes = 16
)

type peerKeys struct {
	signing    ed25519.PublicKey
	encryption *ecdh.PublicKey
}

// Provider программная реализация криптографической capability.
// Безопасен для конкурентного использования.
type Provider struct {
	mu            sync.RWMutex
	peers         map[string]peerKeys
	signingKey    ed25519.PrivateKey
	signingPub    ed25519.PublicKey
	encryptionKey *ecdh.PrivateKey
	did           string
}

var _ crypto.Provider = (*Provider)(nil)

// New создает провайдер без идентичности. Перед использованием
// подписей и шифрования нужно вызвать GenerateIdentity или LoadKeystore.
func New() *Provider {
	return &Provider{peers: make(map[string]peerKeys)}
}

// DeriveDID вычисляет DID из публичного ключа подписи:
// did:sync:<hex(sha256(key)[:16])>.
func DeriveDID(signingPub ed25519.PublicKey) string {
	sum := sha256.Sum256(signingPub)
	return DIDPrefix + hex.EncodeToString(sum[:DIDHashBytes])
}

// IsInitialized сообщает, создана ли локальная идентичность.
func (p *Provider) IsInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.signingKey != nil && p.encryptionKey != nil
}

// LocalDID возвращает DID локальной идентичности или пустую строку.
func (p *Provider) LocalDID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.did
}

// GenerateIdentity создает новую пару ключей подписи и шифрования.
// Существующая идентичность перезаписывается.
func (p *Provider) GenerateIdentity(_ context.Context) (*crypto.PublicIdentity, error) {
	signingPub, signingKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	encryptionKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}

	p.mu.Lock()
	p.signingKey = signingKey
	p.signingPub = signingPub
	p.encryptionKey = encryptionKey
	p.did = DeriveDID(signingPub)
	p.mu.Unlock()

	return p.ExportPublicIdentity()
}

// ExportPublicIdentity возвращает публичную часть локальной идентичности.
func (p *Provider) ExportPublicIdentity() (*crypto.PublicIdentity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.signingKey == nil || p.encryptionKey == nil {
		return nil, crypto.ErrNotInitialized
	}

	return &crypto.PublicIdentity{
		DID:           p.did,
		SigningKey:    append([]byte(nil), p.signingPub...),
		EncryptionKey: p.encryptionKey.PublicKey().Bytes(),
	}, nil
}

// RegisterPeerKeys сохраняет публичные ключи пира для последующей
// проверки подписей и адресного шифрования.
func (p *Provider) RegisterPeerKeys(did string, signingKey, encryptionKey []byte) error {
	if did == "" {
		return fmt.Errorf("peer DID cannot be empty")
	}
	if len(signingKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: signing key must be %d bytes, got %d",
			crypto.ErrInvalidKey, ed25519.PublicKeySize, len(signingKey))
	}

	encPub, err := ecdh.X25519().NewPublicKey(encryptionKey)
	if err != nil {
		return fmt.Errorf("%w: %v", crypto.ErrInvalidKey, err)
	}

	p.mu.Lock()
	p.peers[did] = peerKeys{
		signing:    append(ed25519.PublicKey(nil), signingKey...),
		encryption: encPub,
	}
	p.mu.Unlock()

	return nil
}

// KnownPeers возвращает DID всех зарегистрированных пиров.
func (p *Provider) KnownPeers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dids := make([]string, 0, len(p.peers))
	for did := range p.peers {
		dids = append(dids, did)
	}
	return dids
}

// Sign подписывает байты локальным ключом подписи.
func (p *Provider) Sign(data []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.signingKey == nil {
		return nil, crypto.ErrNotInitialized
	}
	return ed25519.Sign(p.signingKey, data), nil
}

// Verify проверяет подпись над данными против известного ключа
// заявленного подписавшего. Пустой signerDID означает локальную
// идентичность.
func (p *Provider) Verify(data, signature []byte, signerDID string) (bool, error) {
	key, err := p.signingKeyFor(signerDID)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(key, data, signature), nil
}

// VerifyWithKey проверяет подпись против явно переданного публичного
// ключа, минуя реестр пиров.
func (p *Provider) VerifyWithKey(data, signature, publicKey []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: signing key must be %d bytes, got %d",
			crypto.ErrInvalidKey, ed25519.PublicKeySize, len(publicKey))
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, signature), nil
}

// SignEnvelope канонизирует значение и подписывает результат.
func (p *Provider) SignEnvelope(v any) (*crypto.SignedEnvelope, error) {
	payload, err := canonical.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}

	signature, err := p.Sign(payload)
	if err != nil {
		return nil, err
	}

	return &crypto.SignedEnvelope{
		SignedAt:  nowUTC(),
		SignerDID: p.LocalDID(),
		Payload:   payload,
		Signature: signature,
	}, nil
}

// VerifyEnvelope проверяет подписанный конверт против заявленного
// в нем подписавшего.
func (p *Provider) VerifyEnvelope(env *crypto.SignedEnvelope) (bool, error) {
	if env == nil {
		return false, fmt.Errorf("envelope cannot be nil")
	}
	return p.Verify(env.Payload, env.Signature, env.SignerDID)
}

// HashContent возвращает hex-кодированный SHA256-хеш данных.
func (p *Provider) HashContent(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("content cannot be empty")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RandomBytes возвращает n криптографически случайных байт.
func (p *Provider) RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("byte count must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// signingKeyFor возвращает ключ подписи для DID: локальный или пира.
func (p *Provider) signingKeyFor(signerDID string) (ed25519.PublicKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if signerDID == "" || signerDID == p.did {
		if p.signingPub == nil {
			return nil, crypto.ErrNotInitialized
		}
		return p.signingPub, nil
	}

	peer, ok := p.peers[signerDID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crypto.ErrUnknownPeer, signerDID)
	}
	return peer.signing, nil
}

// encryptionKeyFor возвращает ключ шифрования пира.
func (p *Provider) encryptionKeyFor(peerDID string) (*ecdh.PublicKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	peer, ok := p.peers[peerDID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crypto.ErrUnknownPeer, peerDID)
	}
	return peer.encryption, nil
}

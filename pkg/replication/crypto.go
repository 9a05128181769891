package replication

import (
	"fmt"
	"time"

	"github.com/iudanet/synckit/pkg/crypto"
)

// ReplicationEnvelope - wire-конверт шифрованных данных репликации.
// Алгоритм не кодируется отдельным полем: наличие epk означает
// асимметричное шифрование, отсутствие - сессионный ключ.
type ReplicationEnvelope struct {
	EncryptedAt        time.Time `json:"encryptedAt"`   // EncryptedAt время шифрования
	SenderDID          string    `json:"senderDID"`     // SenderDID DID отправителя
	TargetDID          string    `json:"targetDID"`     // TargetDID DID реплики-адресата
	Ciphertext         []byte    `json:"ct"`            // Ciphertext шифротекст
	IV                 []byte    `json:"iv"`            // IV вектор инициализации
	Tag                []byte    `json:"tag"`           // Tag тег аутентификации
	EphemeralPublicKey []byte    `json:"epk,omitempty"` // EphemeralPublicKey эфемерный ключ ECIES
}

// EncryptForReplica шифрует данные адресно для реплики с указанным DID.
// Используется асимметричная схема с эфемерным ключом: расшифровать
// конверт может только владелец ключей адресата.
func (m *Manager) EncryptForReplica(data []byte, targetDID string) (*ReplicationEnvelope, error) {
	m.mu.RLock()
	provider := m.provider
	m.mu.RUnlock()

	if provider == nil || !provider.IsInitialized() {
		return nil, ErrCryptoNotInitialized
	}
	if targetDID == "" {
		return nil, fmt.Errorf("target DID cannot be empty")
	}

	payload, err := provider.EncryptFor(data, targetDID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt for replica: %w", err)
	}

	return &ReplicationEnvelope{
		EncryptedAt:        time.Now().UTC(),
		SenderDID:          provider.LocalDID(),
		TargetDID:          targetDID,
		Ciphertext:         payload.Ciphertext,
		IV:                 payload.IV,
		Tag:                payload.Tag,
		EphemeralPublicKey: payload.EphemeralPublicKey,
	}, nil
}

// EncryptForReplicaSession шифрует данные для реплики сессионным ключом,
// выведенным из пары локальной и удаленной идентичностей. Дешевле
// асимметричной схемы при многократной репликации одному адресату.
func (m *Manager) EncryptForReplicaSession(data []byte, targetDID string) (*ReplicationEnvelope, error) {
	m.mu.RLock()
	provider := m.provider
	m.mu.RUnlock()

	if provider == nil || !provider.IsInitialized() {
		return nil, ErrCryptoNotInitialized
	}
	if targetDID == "" {
		return nil, fmt.Errorf("target DID cannot be empty")
	}

	key, err := provider.DeriveSessionKey(targetDID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}

	payload, err := provider.EncryptSymmetric(data, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt for replica: %w", err)
	}

	return &ReplicationEnvelope{
		EncryptedAt: time.Now().UTC(),
		SenderDID:   provider.LocalDID(),
		TargetDID:   targetDID,
		Ciphertext:  payload.Ciphertext,
		IV:          payload.IV,
		Tag:         payload.Tag,
	}, nil
}

// DecryptReplicationData расшифровывает конверт репликации, адресованный
// локальной идентичности. Конверт с epk расшифровывается асимметрично,
// без epk - сессионным ключом, выведенным из DID отправителя.
func (m *Manager) DecryptReplicationData(envelope *ReplicationEnvelope) ([]byte, error) {
	m.mu.RLock()
	provider := m.provider
	m.mu.RUnlock()

	if provider == nil || !provider.IsInitialized() {
		return nil, ErrCryptoNotInitialized
	}
	if envelope == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}

	if len(envelope.EphemeralPublicKey) > 0 {
		data, err := provider.DecryptFrom(&crypto.EncryptedPayload{
			Algorithm:          crypto.AlgorithmECIES,
			Ciphertext:         envelope.Ciphertext,
			IV:                 envelope.IV,
			Tag:                envelope.Tag,
			EphemeralPublicKey: envelope.EphemeralPublicKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt replication data: %w", err)
		}
		return data, nil
	}

	if envelope.SenderDID == "" {
		return nil, fmt.Errorf("envelope has no sender DID")
	}
	key, err := provider.DeriveSessionKey(envelope.SenderDID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	data, err := provider.DecryptSymmetric(&crypto.EncryptedPayload{
		Algorithm:  crypto.AlgorithmAESGCM,
		Ciphertext: envelope.Ciphertext,
		IV:         envelope.IV,
		Tag:        envelope.Tag,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt replication data: %w", err)
	}
	return data, nil
}

// VerifyReplicaCapabilities проверяет capability-токен реплики против
// требований политики. Пустой policyID означает проверку без требований.
// Без криптопровайдера проверка всегда успешна: политика доверия
// остается за host-приложением.
func (m *Manager) VerifyReplicaCapabilities(did, token, policyID string) (*crypto.TokenVerification, error) {
	m.mu.RLock()
	provider := m.provider
	var required []string
	if policyID != "" {
		policy, ok := m.policies[policyID]
		if !ok {
			m.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyID)
		}
		required = append([]string(nil), policy.RequiredCapabilities...)
	}
	m.mu.RUnlock()

	if provider == nil {
		return &crypto.TokenVerification{Authorized: true}, nil
	}

	result := provider.VerifyToken(token, required)
	if result.Authorized && result.AudienceDID != "" && result.AudienceDID != "*" && result.AudienceDID != did {
		result.Authorized = false
		result.Error = fmt.Sprintf("token not addressed to %s", did)
	}
	return result, nil
}

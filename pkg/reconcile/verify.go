package reconcile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/synckit/internal/canonical"
	"github.com/iudanet/synckit/pkg/crypto"
	"github.com/iudanet/synckit/pkg/models"
)

// VersionVerification - результат проверки одной версии состояния.
// Отказ проверки не является error.
type VersionVerification struct {
	Error string `json:"error,omitempty"` // Error причина отказа
	Valid bool   `json:"valid"`           // Valid версия прошла проверку
}

// signedVersionPayload - структура, которую покрывает подпись версии.
type signedVersionPayload struct {
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
	Hash    string          `json:"hash"`
}

// ConfigureCrypto подключает криптографическую capability.
// requireSignatures делает неподписанные версии невалидными
// при проверке.
func (r *Reconciler) ConfigureCrypto(provider crypto.Provider, requireSignatures bool) {
	r.mu.Lock()
	r.provider = provider
	r.requireSignatures = requireSignatures
	r.mu.Unlock()
}

// cryptoState возвращает согласованную пару провайдер/настройка.
func (r *Reconciler) cryptoState() (crypto.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.provider, r.requireSignatures
}

// RecordSignedStateVersion записывает версию с подписью локальной
// идентичности: хеш вычисляется из канонической формы данных, подпись
// покрывает тройку {version, data, hash}. Идентификатором узла служит
// локальный DID.
func (r *Reconciler) RecordSignedStateVersion(key, version string, data any) (*models.StateVersion, error) {
	provider, _ := r.cryptoState()
	if provider == nil || !provider.IsInitialized() {
		return nil, ErrCryptoNotInitialized
	}

	raw, err := canonical.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize state data: %w", err)
	}

	hash, err := provider.HashContent(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to hash state data: %w", err)
	}

	sigPayload, err := canonical.Marshal(signedVersionPayload{
		Version: version,
		Data:    raw,
		Hash:    hash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build signing payload: %w", err)
	}

	signature, err := provider.Sign(sigPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign state version: %w", err)
	}

	now := time.Now().UTC()
	sv := &models.StateVersion{
		Timestamp: now,
		SignedAt:  &now,
		Version:   version,
		NodeID:    provider.LocalDID(),
		Hash:      hash,
		SignerDID: provider.LocalDID(),
		Data:      raw,
		Signature: signature,
	}

	r.mu.Lock()
	r.versions[key] = append(r.versions[key], sv)
	r.mu.Unlock()

	return sv.Clone(), nil
}

// VerifyStateVersion проверяет одну версию состояния. Неподписанная
// версия проверяется по хешу содержимого; подписанная - по подписи
// над тройкой {version, data, hash} против заявленного подписавшего.
func (r *Reconciler) VerifyStateVersion(sv *models.StateVersion) *VersionVerification {
	if sv == nil {
		return &VersionVerification{Error: "version is nil"}
	}
	provider, requireSignatures := r.cryptoState()

	if !sv.IsSigned() {
		if requireSignatures {
			return &VersionVerification{Error: "Signature required but not present"}
		}

		hash, err := hashContent(sv.Data)
		if err != nil {
			return &VersionVerification{Error: err.Error()}
		}
		if hash != sv.Hash {
			return &VersionVerification{Error: "Hash mismatch"}
		}
		return &VersionVerification{Valid: true}
	}

	if provider == nil {
		return &VersionVerification{Error: "Crypto provider not configured"}
	}

	sigPayload, err := canonical.Marshal(signedVersionPayload{
		Version: sv.Version,
		Data:    sv.Data,
		Hash:    sv.Hash,
	})
	if err != nil {
		return &VersionVerification{Error: err.Error()}
	}

	ok, err := provider.Verify(sigPayload, sv.Signature, sv.SignerDID)
	if err != nil {
		return &VersionVerification{Error: err.Error()}
	}
	if !ok {
		return &VersionVerification{Error: "Invalid signature"}
	}

	return &VersionVerification{Valid: true}
}

// ReconcileWithVerification проверяет все версии ключа, отбрасывает
// непрошедшие проверку и применяет стратегию к уцелевшим. Если не
// уцелела ни одна версия, возвращается неуспешный результат с перечнем
// ошибок проверки.
func (r *Reconciler) ReconcileWithVerification(key string, strategy Strategy) (*Result, error) {
	if strategy == "" {
		strategy = StrategyLastWriteWins
	}

	r.mu.RLock()
	stored := append([]*models.StateVersion(nil), r.versions[key]...)
	r.mu.RUnlock()

	var survivors []*models.StateVersion
	var verificationErrors []string
	for _, sv := range stored {
		verification := r.VerifyStateVersion(sv)
		if verification.Valid {
			survivors = append(survivors, sv)
			continue
		}
		verificationErrors = append(verificationErrors,
			fmt.Sprintf("%s: %s", sv.Version, verification.Error))
	}

	if len(survivors) == 0 {
		result := &Result{
			Timestamp:          time.Now().UTC(),
			Strategy:           strategy,
			VerificationErrors: verificationErrors,
		}
		r.appendHistory(result)
		return result, nil
	}

	var result *Result
	var err error
	switch strategy {
	case StrategyLastWriteWins:
		result, err = r.ReconcileLastWriteWins(survivors)
	case StrategyVectorClock:
		result, err = r.ReconcileVectorClock(survivors)
	case StrategyMajorityVote:
		result, err = r.ReconcileMajorityVote(survivors)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
	if err != nil {
		return nil, err
	}

	result.VerificationErrors = verificationErrors
	return result, nil
}

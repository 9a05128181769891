// Package reconcile реализует обнаружение и разрешение расхождений
// между версиями состояния, произведенными независимыми узлами.
// История версий ведется по логическим ключам и только добавляется;
// три стратегии слияния выбирают победителя по времени или большинству.
package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/synckit/internal/canonical"
	"github.com/iudanet/synckit/pkg/crypto"
	"github.com/iudanet/synckit/pkg/models"
)

// Reconciler хранит историю версий состояния по ключам и историю
// выполненных реконсиляций. Безопасен для конкурентного использования.
type Reconciler struct {
	mu                sync.RWMutex
	provider          crypto.Provider
	versions          map[string][]*models.StateVersion
	history           []*Result
	requireSignatures bool
}

// New создает реконсилятор без криптографии: подписанные версии
// недоступны до ConfigureCrypto.
func New() *Reconciler {
	return &Reconciler{versions: make(map[string][]*models.StateVersion)}
}

// RecordStateVersion добавляет версию состояния в историю ключа.
// История только растет: версии не изменяются и не удаляются.
func (r *Reconciler) RecordStateVersion(key, version string, timestamp time.Time, nodeID, hash string, data any) (*models.StateVersion, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state data: %w", err)
	}

	sv := &models.StateVersion{
		Timestamp: timestamp,
		Version:   version,
		NodeID:    nodeID,
		Hash:      hash,
		Data:      raw,
	}

	r.mu.Lock()
	r.versions[key] = append(r.versions[key], sv)
	r.mu.Unlock()

	return sv.Clone(), nil
}

// GetStateVersions возвращает историю версий ключа в порядке записи.
func (r *Reconciler) GetStateVersions(key string) []*models.StateVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.versions[key]
	result := make([]*models.StateVersion, 0, len(stored))
	for _, sv := range stored {
		result = append(result, sv.Clone())
	}
	return result
}

// DetectConflicts сообщает, конфликтует ли история ключа: конфликт есть,
// когда среди записанных версий больше одного различного хеша.
func (r *Reconciler) DetectConflicts(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hashes := make(map[string]struct{})
	for _, sv := range r.versions[key] {
		hashes[sv.Hash] = struct{}{}
		if len(hashes) > 1 {
			return true
		}
	}
	return false
}

// Clear удаляет всю историю версий и реконсиляций.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	r.versions = make(map[string][]*models.StateVersion)
	r.history = nil
	r.mu.Unlock()
}

// ValueChange - изменение значения одного ключа между двумя состояниями.
type ValueChange struct {
	Old any `json:"old"` // Old прежнее значение
	New any `json:"new"` // New новое значение
}

// StateDiff - результат одноуровневого сравнения двух состояний.
type StateDiff struct {
	Added    map[string]any         `json:"added"`    // Added ключи, появившиеся во втором состоянии
	Modified map[string]ValueChange `json:"modified"` // Modified ключи с изменившимся значением
	Removed  []string               `json:"removed"`  // Removed ключи, исчезнувшие из второго состояния
}

// CompareStates строит одноуровневый диф между двумя состояниями:
// вложенные значения сравниваются целиком по сериализованной форме,
// без рекурсивного спуска.
func CompareStates(a, b map[string]any) (*StateDiff, error) {
	diff := &StateDiff{
		Added:    make(map[string]any),
		Modified: make(map[string]ValueChange),
	}

	for key, newValue := range b {
		oldValue, exists := a[key]
		if !exists {
			diff.Added[key] = newValue
			continue
		}

		same, err := equalSerialized(oldValue, newValue)
		if err != nil {
			return nil, err
		}
		if !same {
			diff.Modified[key] = ValueChange{Old: oldValue, New: newValue}
		}
	}

	for key := range a {
		if _, exists := b[key]; !exists {
			diff.Removed = append(diff.Removed, key)
		}
	}
	sort.Strings(diff.Removed)

	return diff, nil
}

// MergeStates выполняет поверхностное слияние состояний слева направо:
// при совпадении ключей побеждает более позднее состояние. Конфликты
// не детектируются.
func MergeStates(states []map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, state := range states {
		for key, value := range state {
			merged[key] = value
		}
	}
	return merged
}

// equalSerialized сравнивает значения по канонической JSON-форме.
func equalSerialized(a, b any) (bool, error) {
	rawA, err := canonical.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to serialize value: %w", err)
	}
	rawB, err := canonical.Marshal(b)
	if err != nil {
		return false, fmt.Errorf("failed to serialize value: %w", err)
	}
	return string(rawA) == string(rawB), nil
}

// hashContent вычисляет контентный хеш данных: SHA256 поверх
// канонической JSON-формы, hex-кодированный.
func hashContent(data json.RawMessage) (string, error) {
	raw, err := canonical.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize data: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

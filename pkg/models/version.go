package models

import (
	"encoding/json"
	"time"
)

// StateVersion представляет одну версию состояния для логического ключа.
// Версии хранятся в append-only последовательности для каждого ключа:
// они никогда не изменяются и не удаляются, кроме полной очистки.
// Метка Version задается приложением и глобально не упорядочена.
type StateVersion struct {
	Timestamp time.Time       `json:"timestamp"`           // Timestamp время создания версии
	SignedAt  *time.Time      `json:"signedAt,omitempty"`  // SignedAt время подписания (подписанные версии)
	Version   string          `json:"version"`             // Version метка версии, заданная приложением
	NodeID    string          `json:"nodeId"`              // NodeID узел, создавший версию
	Hash      string          `json:"hash"`                // Hash контентный отпечаток данных
	SignerDID string          `json:"signerDid,omitempty"` // SignerDID DID подписавшего узла
	Data      json.RawMessage `json:"data"`                // Data непрозрачная полезная нагрузка
	Signature []byte          `json:"signature,omitempty"` // Signature подпись над {version, data, hash}
}

// IsSigned возвращает true, если версия несет подпись.
func (v *StateVersion) IsSigned() bool {
	return len(v.Signature) > 0 || v.SignerDID != ""
}

// Clone создает глубокую копию версии.
func (v *StateVersion) Clone() *StateVersion {
	clone := *v

	clone.Data = append(json.RawMessage(nil), v.Data...)
	clone.Signature = append([]byte(nil), v.Signature...)

	if v.SignedAt != nil {
		signedAt := *v.SignedAt
		clone.SignedAt = &signedAt
	}

	return &clone
}

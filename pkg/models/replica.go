package models

import "time"

// ReplicaStatus описывает состояние реплики.
type ReplicaStatus string

const (
	// ReplicaStatusPrimary основная реплика
	ReplicaStatusPrimary ReplicaStatus = "primary"
	// ReplicaStatusSecondary вторичная реплика, догнавшая primary
	ReplicaStatusSecondary ReplicaStatus = "secondary"
	// ReplicaStatusSyncing реплика в процессе синхронизации
	ReplicaStatusSyncing ReplicaStatus = "syncing"
	// ReplicaStatusFailed реплика недоступна или отстала безнадежно
	ReplicaStatusFailed ReplicaStatus = "failed"
)

// ConsistencyLevel определяет требования к согласованности реплик.
type ConsistencyLevel string

const (
	// ConsistencyEventual согласованность в конечном счете: подтверждения не требуются
	ConsistencyEventual ConsistencyLevel = "eventual"
	// ConsistencyReadAfterWrite чтение собственных записей: минимум одна здоровая реплика
	ConsistencyReadAfterWrite ConsistencyLevel = "read-after-write"
	// ConsistencyStrong строгая согласованность: здоровых реплик не меньше replication factor
	ConsistencyStrong ConsistencyLevel = "strong"
)

// Replica представляет одну реплику данных на узле.
// Реплика считается здоровой в статусах primary и secondary.
type Replica struct {
	LastSyncTime time.Time     `json:"lastSyncTime"`        // LastSyncTime время последней синхронизации
	ID           string        `json:"id"`                  // ID уникальный идентификатор реплики
	NodeID       string        `json:"nodeId"`              // NodeID узел, на котором размещена реплика
	Status       ReplicaStatus `json:"status"`              // Status текущий статус реплики
	DID          string        `json:"did,omitempty"`       // DID идентичность реплики (аутентифицированные реплики)
	LagBytes     int64         `json:"lagBytes"`            // LagBytes отставание от primary в байтах
	LagMillis    int64         `json:"lagMillis"`           // LagMillis отставание от primary в миллисекундах
	Encrypted    bool          `json:"encrypted,omitempty"` // Encrypted реплика принимает только шифрованные данные
}

// IsHealthy возвращает true для реплик в статусе primary или secondary.
func (r *Replica) IsHealthy() bool {
	return r.Status == ReplicaStatusPrimary || r.Status == ReplicaStatusSecondary
}

// Clone создает копию реплики.
func (r *Replica) Clone() *Replica {
	clone := *r
	return &clone
}

// ReplicationPolicy описывает политику репликации.
// Политика неизменяема после создания: операции обновления нет.
type ReplicationPolicy struct {
	ID                   string           `json:"id"`                                                                          // ID уникальный идентификатор политики (UUID)
	Name                 string           `json:"name" validate:"required"`                                                    // Name человекочитаемое имя политики
	ConsistencyLevel     ConsistencyLevel `json:"consistencyLevel" validate:"required,oneof=eventual read-after-write strong"` // ConsistencyLevel требуемый уровень согласованности
	EncryptionMode       EncryptionMode   `json:"encryptionMode,omitempty" validate:"omitempty,oneof=none session asymmetric"` // EncryptionMode режим шифрования реплицируемых данных
	RequiredCapabilities []string         `json:"requiredCapabilities,omitempty"`                                              // RequiredCapabilities capabilities, требуемые от реплик
	ReplicationFactor    int              `json:"replicationFactor" validate:"min=1"`                                          // ReplicationFactor минимальное число здоровых реплик
	SyncInterval         int64            `json:"syncInterval" validate:"min=0"`                                               // SyncInterval интервал синхронизации в миллисекундах
	MaxReplicationLag    int64            `json:"maxReplicationLag" validate:"min=0"`                                          // MaxReplicationLag допустимое отставание в миллисекундах
}

// Clone создает глубокую копию политики.
func (p *ReplicationPolicy) Clone() *ReplicationPolicy {
	clone := *p
	clone.RequiredCapabilities = append([]string(nil), p.RequiredCapabilities...)
	return &clone
}

// SyncStats счетчики успешных и неуспешных синхронизаций одного узла.
type SyncStats struct {
	Synced int `json:"synced"` // Synced количество успешных синхронизаций
	Failed int `json:"failed"` // Failed количество неуспешных синхронизаций
}

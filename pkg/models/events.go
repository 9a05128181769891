package models

import "time"

// SyncEventType тип события координатора синхронизации.
type SyncEventType string

const (
	// SyncEventNodeJoined узел зарегистрирован
	SyncEventNodeJoined SyncEventType = "node-joined"
	// SyncEventNodeLeft узел дерегистрирован
	SyncEventNodeLeft SyncEventType = "node-left"
	// SyncEventSyncStarted сессия синхронизации создана
	SyncEventSyncStarted SyncEventType = "sync-started"
	// SyncEventSyncCompleted сессия перешла в конечное состояние
	SyncEventSyncCompleted SyncEventType = "sync-completed"
	// SyncEventConflictDetected в сессии зафиксирован конфликт
	SyncEventConflictDetected SyncEventType = "conflict-detected"
)

// SyncEvent запись в append-only журнале событий координатора.
type SyncEvent struct {
	Timestamp time.Time      `json:"timestamp"`           // Timestamp время события
	Type      SyncEventType  `json:"type"`                // Type тип события
	NodeID    string         `json:"nodeId,omitempty"`    // NodeID связанный узел
	SessionID string         `json:"sessionId,omitempty"` // SessionID связанная сессия
	Data      map[string]any `json:"data,omitempty"`      // Data дополнительные детали события
}

// ReplicationEventType тип события менеджера репликации.
type ReplicationEventType string

const (
	// ReplicationEventReplicaAdded реплика зарегистрирована
	ReplicationEventReplicaAdded ReplicationEventType = "replica-added"
	// ReplicationEventReplicaRemoved реплика удалена
	ReplicationEventReplicaRemoved ReplicationEventType = "replica-removed"
	// ReplicationEventReplicaSynced реплика успешно синхронизировалась
	ReplicationEventReplicaSynced ReplicationEventType = "replica-synced"
	// ReplicationEventSyncFailed синхронизация реплики завершилась ошибкой
	ReplicationEventSyncFailed ReplicationEventType = "sync-failed"
)

// ReplicationEvent запись в append-only журнале событий репликации.
type ReplicationEvent struct {
	Timestamp time.Time            `json:"timestamp"`           // Timestamp время события
	Type      ReplicationEventType `json:"type"`                // Type тип события
	ReplicaID string               `json:"replicaId,omitempty"` // ReplicaID связанная реплика
	NodeID    string               `json:"nodeId,omitempty"`    // NodeID узел реплики
	Details   map[string]any       `json:"details,omitempty"`   // Details дополнительные детали события
}

package replication

import (
	"context"

	"github.com/iudanet/synckit/internal/persist"
	"github.com/iudanet/synckit/pkg/models"
	"github.com/iudanet/synckit/pkg/storage"
)

// replicationSnapshot - форма состояния репликации в storage.
// Журнал событий не персистится: это оперативная телеметрия.
type replicationSnapshot struct {
	Replicas  map[string]*models.Replica           `json:"replicas"`  // Replicas реестр реплик
	Policies  map[string]*models.ReplicationPolicy `json:"policies"`  // Policies реестр политик
	SyncStats map[string]*models.SyncStats         `json:"syncStats"` // SyncStats счетчики по узлам
}

// snapshot строит сериализуемый снимок состояния для persist.Saver.
func (m *Manager) snapshot() any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := replicationSnapshot{
		Replicas:  make(map[string]*models.Replica, len(m.replicas)),
		Policies:  make(map[string]*models.ReplicationPolicy, len(m.policies)),
		SyncStats: make(map[string]*models.SyncStats, len(m.syncStats)),
	}
	for id, replica := range m.replicas {
		snap.Replicas[id] = replica
	}
	for id, policy := range m.policies {
		snap.Policies[id] = policy
	}
	for nodeID, stats := range m.syncStats {
		statsCopy := *stats
		snap.SyncStats[nodeID] = &statsCopy
	}
	return snap
}

// loadPersistedState восстанавливает реплики, политики и счетчики
// из storage. Загрузка защитная: невалидные записи пропускаются
// с предупреждением, а не валят загрузку целиком.
func (m *Manager) loadPersistedState(ctx context.Context, store storage.Store) {
	var snap replicationSnapshot
	if !persist.Load(ctx, store, storageKey, m.logger, &snap) {
		return
	}

	restored := 0
	skipped := 0

	m.mu.Lock()
	for id, replica := range snap.Replicas {
		if id == "" || replica == nil || replica.ID != id {
			skipped++
			continue
		}
		m.storeReplicaLocked(replica)
		restored++
	}

	for id, policy := range snap.Policies {
		if id == "" || policy == nil || policy.ID != id {
			skipped++
			continue
		}
		if err := m.validate.Struct(policy); err != nil {
			skipped++
			continue
		}
		m.policies[id] = policy
		restored++
	}

	for nodeID, stats := range snap.SyncStats {
		if nodeID == "" || stats == nil {
			skipped++
			continue
		}
		m.syncStats[nodeID] = stats
	}
	m.mu.Unlock()

	if skipped > 0 {
		m.logger.Warn("Skipped malformed records during replication state load",
			"restored", restored,
			"skipped", skipped)
	} else if restored > 0 {
		m.logger.Info("Restored replication state",
			"replicas", len(snap.Replicas),
			"policies", len(snap.Policies))
	}
}

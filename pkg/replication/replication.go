// Package replication отслеживает здоровье реплик относительно
// объявленных политик: реестр реплик и политик, проверки согласованности,
// шифрованные конверты репликации и журнал событий. Сам перенос данных
// между репликами выполняет host-приложение.
package replication

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iudanet/synckit/internal/events"
	"github.com/iudanet/synckit/internal/persist"
	"github.com/iudanet/synckit/pkg/crypto"
	"github.com/iudanet/synckit/pkg/models"
	"github.com/iudanet/synckit/pkg/storage"
)

// storageKey - ключ снапшота состояния репликации в storage capability
const storageKey = "synckit.replication"

// Manager ведет реестры реплик и политик репликации. Безопасен
// для конкурентного использования.
type Manager struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	provider  crypto.Provider
	saver     *persist.Saver
	bus       *events.Bus[models.ReplicationEvent]
	validate  *validator.Validate
	replicas  map[string]*models.Replica
	byDID     map[string]string
	policies  map[string]*models.ReplicationPolicy
	syncStats map[string]*models.SyncStats
	events    []models.ReplicationEvent
}

// New создает менеджер репликации. Если store не nil, из него
// восстанавливаются реплики, политики и счетчики, а изменения
// сохраняются обратно с дебаунсом.
func New(ctx context.Context, store storage.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:    logger,
		bus:       events.NewBus[models.ReplicationEvent](logger),
		validate:  validator.New(),
		replicas:  make(map[string]*models.Replica),
		byDID:     make(map[string]string),
		policies:  make(map[string]*models.ReplicationPolicy),
		syncStats: make(map[string]*models.SyncStats),
	}

	m.saver = persist.NewSaver(store, storageKey, persist.DefaultDelay, logger, m.snapshot)
	m.loadPersistedState(ctx, store)

	return m
}

// ConfigureCrypto подключает криптографическую capability: шифрованные
// конверты и проверка capability-токенов становятся доступны.
func (m *Manager) ConfigureCrypto(provider crypto.Provider) {
	m.mu.Lock()
	m.provider = provider
	m.mu.Unlock()
}

// RegisterReplica регистрирует реплику. Повторная регистрация того же
// id перезаписывает существующую запись.
func (m *Manager) RegisterReplica(id, nodeID string, status models.ReplicaStatus) (*models.Replica, error) {
	if id == "" {
		return nil, fmt.Errorf("replica id cannot be empty")
	}
	if nodeID == "" {
		return nil, fmt.Errorf("node id cannot be empty")
	}
	if status == "" {
		status = models.ReplicaStatusSecondary
	}

	replica := &models.Replica{
		LastSyncTime: time.Now().UTC(),
		ID:           id,
		NodeID:       nodeID,
		Status:       status,
	}

	m.mu.Lock()
	m.storeReplicaLocked(replica)
	m.appendEventLocked(models.ReplicationEventReplicaAdded, id, nodeID, nil)
	m.mu.Unlock()

	m.saver.Schedule()
	m.logger.Info("Replica registered", "replica_id", id, "node_id", nodeID, "status", string(status))

	return replica.Clone(), nil
}

// RegisterAuthenticatedReplica регистрирует реплику с криптографической
// идентичностью и, при подключенном провайдере, сохраняет у него
// публичные ключи реплики для последующего адресного шифрования.
func (m *Manager) RegisterAuthenticatedReplica(id, nodeID, did string, signingKey, encryptionKey []byte, encrypted bool) (*models.Replica, error) {
	if id == "" {
		return nil, fmt.Errorf("replica id cannot be empty")
	}
	if did == "" {
		return nil, fmt.Errorf("replica DID cannot be empty")
	}

	m.mu.RLock()
	provider := m.provider
	m.mu.RUnlock()

	if provider != nil && len(signingKey) > 0 {
		if err := provider.RegisterPeerKeys(did, signingKey, encryptionKey); err != nil {
			return nil, fmt.Errorf("failed to register replica keys: %w", err)
		}
	}

	replica := &models.Replica{
		LastSyncTime: time.Now().UTC(),
		ID:           id,
		NodeID:       nodeID,
		Status:       models.ReplicaStatusSecondary,
		DID:          did,
		Encrypted:    encrypted,
	}

	m.mu.Lock()
	m.storeReplicaLocked(replica)
	m.appendEventLocked(models.ReplicationEventReplicaAdded, id, nodeID, map[string]any{"did": did})
	m.mu.Unlock()

	m.saver.Schedule()
	m.logger.Info("Authenticated replica registered", "replica_id", id, "node_id", nodeID, "did", did)

	return replica.Clone(), nil
}

// GetReplica возвращает реплику по идентификатору.
func (m *Manager) GetReplica(id string) (*models.Replica, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	replica, ok := m.replicas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReplicaNotFound, id)
	}
	return replica.Clone(), nil
}

// GetReplicaByDID возвращает аутентифицированную реплику по DID.
func (m *Manager) GetReplicaByDID(did string) (*models.Replica, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byDID[did]
	if !ok {
		return nil, fmt.Errorf("%w: did %s", ErrReplicaNotFound, did)
	}
	return m.replicas[id].Clone(), nil
}

// ListReplicas возвращает все реплики без определенного порядка.
func (m *Manager) ListReplicas() []*models.Replica {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Replica, 0, len(m.replicas))
	for _, replica := range m.replicas {
		result = append(result, replica.Clone())
	}
	return result
}

// RemoveReplica удаляет реплику из реестра.
func (m *Manager) RemoveReplica(id string) error {
	m.mu.Lock()
	replica, ok := m.replicas[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReplicaNotFound, id)
	}

	delete(m.replicas, id)
	if replica.DID != "" {
		delete(m.byDID, replica.DID)
	}
	m.appendEventLocked(models.ReplicationEventReplicaRemoved, id, replica.NodeID, nil)
	m.mu.Unlock()

	m.saver.Schedule()
	m.logger.Info("Replica removed", "replica_id", id)

	return nil
}

// UpdateReplicaStatus обновляет статус реплики и штампует время
// синхронизации. Отрицательные lagBytes/lagMillis оставляют прежние
// значения. Переход в syncing или secondary увеличивает счетчик
// успешных синхронизаций узла, переход в failed - счетчик неуспешных.
func (m *Manager) UpdateReplicaStatus(id string, status models.ReplicaStatus, lagBytes, lagMillis int64) error {
	m.mu.Lock()
	replica, ok := m.replicas[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReplicaNotFound, id)
	}

	previous := replica.Status
	replica.Status = status
	replica.LastSyncTime = time.Now().UTC()
	if lagBytes >= 0 {
		replica.LagBytes = lagBytes
	}
	if lagMillis >= 0 {
		replica.LagMillis = lagMillis
	}

	if previous != status {
		stats := m.statsLocked(replica.NodeID)
		switch status {
		case models.ReplicaStatusSyncing, models.ReplicaStatusSecondary:
			stats.Synced++
			m.appendEventLocked(models.ReplicationEventReplicaSynced, id, replica.NodeID,
				map[string]any{"status": string(status), "lagMillis": replica.LagMillis})
		case models.ReplicaStatusFailed:
			stats.Failed++
			m.appendEventLocked(models.ReplicationEventSyncFailed, id, replica.NodeID,
				map[string]any{"previousStatus": string(previous)})
		}
	}
	m.mu.Unlock()

	m.saver.Schedule()
	return nil
}

// GetSyncStats возвращает счетчики синхронизаций узла.
func (m *Manager) GetSyncStats(nodeID string) models.SyncStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats, ok := m.syncStats[nodeID]; ok {
		return *stats
	}
	return models.SyncStats{}
}

// GetEvents возвращает журнал событий репликации в порядке записи.
func (m *Manager) GetEvents() []models.ReplicationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.ReplicationEvent(nil), m.events...)
}

// Subscribe возвращает канал событий репликации и функцию отписки.
// Медленный подписчик теряет события, а не блокирует менеджер.
func (m *Manager) Subscribe(buffer int) (<-chan models.ReplicationEvent, func()) {
	return m.bus.Subscribe(buffer)
}

// Close останавливает дебаунс-таймер, пишет финальный снапшот
// и закрывает каналы подписчиков.
func (m *Manager) Close() {
	m.saver.Close()
	m.bus.Close()
}

// storeReplicaLocked кладет реплику в реестр и DID-индекс.
func (m *Manager) storeReplicaLocked(replica *models.Replica) {
	if existing, ok := m.replicas[replica.ID]; ok && existing.DID != "" {
		delete(m.byDID, existing.DID)
	}
	m.replicas[replica.ID] = replica
	if replica.DID != "" {
		m.byDID[replica.DID] = replica.ID
	}
}

// statsLocked возвращает счетчики узла, создавая их при первом обращении.
func (m *Manager) statsLocked(nodeID string) *models.SyncStats {
	stats, ok := m.syncStats[nodeID]
	if !ok {
		stats = &models.SyncStats{}
		m.syncStats[nodeID] = stats
	}
	return stats
}

// appendEventLocked пишет событие в журнал и рассылает подписчикам.
func (m *Manager) appendEventLocked(eventType models.ReplicationEventType, replicaID, nodeID string, details map[string]any) {
	event := models.ReplicationEvent{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		ReplicaID: replicaID,
		NodeID:    nodeID,
		Details:   details,
	}
	m.events = append(m.events, event)
	m.bus.Publish(event)
}

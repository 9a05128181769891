package replication

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/synckit/pkg/models"
	"github.com/iudanet/synckit/pkg/storage"
)

// newTestManager создает менеджер без персистентности
func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m := New(context.Background(), nil, slog.Default())
	t.Cleanup(m.Close)
	return m
}

// validPolicy возвращает минимальную валидную политику
func validPolicy() *models.ReplicationPolicy {
	return &models.ReplicationPolicy{
		Name:              "default",
		ConsistencyLevel:  models.ConsistencyEventual,
		ReplicationFactor: 1,
	}
}

func TestManager_RegisterReplica(t *testing.T) {
	m := newTestManager(t)

	replica, err := m.RegisterReplica("replica-1", "node-a", models.ReplicaStatusPrimary)
	require.NoError(t, err)
	require.NotNil(t, replica)

	assert.Equal(t, "replica-1", replica.ID)
	assert.Equal(t, "node-a", replica.NodeID)
	assert.Equal(t, models.ReplicaStatusPrimary, replica.Status)
	assert.False(t, replica.LastSyncTime.IsZero())

	stored, err := m.GetReplica("replica-1")
	require.NoError(t, err)
	assert.Equal(t, replica, stored)

	// Возвращаются копии: изменение результата не трогает реестр
	stored.NodeID = "mutated"
	again, err := m.GetReplica("replica-1")
	require.NoError(t, err)
	assert.Equal(t, "node-a", again.NodeID)
}

func TestManager_RegisterReplica_DefaultStatus(t *testing.T) {
	m := newTestManager(t)

	replica, err := m.RegisterReplica("replica-1", "node-a", "")
	require.NoError(t, err)
	assert.Equal(t, models.ReplicaStatusSecondary, replica.Status)
}

func TestManager_RegisterReplica_Validation(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RegisterReplica("", "node-a", models.ReplicaStatusPrimary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica id cannot be empty")

	_, err = m.RegisterReplica("replica-1", "", models.ReplicaStatusPrimary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node id cannot be empty")
}

func TestManager_RegisterReplica_Overwrite(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RegisterReplica("replica-1", "node-a", models.ReplicaStatusPrimary)
	require.NoError(t, err)
	_, err = m.RegisterReplica("replica-1", "node-b", models.ReplicaStatusSecondary)
	require.NoError(t, err)

	replica, err := m.GetReplica("replica-1")
	require.NoError(t, err)
	assert.Equal(t, "node-b", replica.NodeID)
	assert.Len(t, m.ListReplicas(), 1)
}

func TestManager_GetReplica_NotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetReplica("unknown")
	assert.ErrorIs(t, err, ErrReplicaNotFound)

	_, err = m.GetReplicaByDID("did:sync:unknown")
	assert.ErrorIs(t, err, ErrReplicaNotFound)
}

func TestManager_RegisterAuthenticatedReplica(t *testing.T) {
	m := newTestManager(t)

	// Без провайдера ключи не регистрируются, но реплика получает DID
	replica, err := m.RegisterAuthenticatedReplica("replica-1", "node-a", "did:sync:abc", nil, nil, true)
	require.NoError(t, err)

	assert.Equal(t, "did:sync:abc", replica.DID)
	assert.Equal(t, models.ReplicaStatusSecondary, replica.Status)
	assert.True(t, replica.Encrypted)

	byDID, err := m.GetReplicaByDID("did:sync:abc")
	require.NoError(t, err)
	assert.Equal(t, "replica-1", byDID.ID)
}

func TestManager_RegisterAuthenticatedReplica_Validation(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RegisterAuthenticatedReplica("", "node-a", "did:sync:abc", nil, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica id cannot be empty")

	_, err = m.RegisterAuthenticatedReplica("replica-1", "node-a", "", nil, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica DID cannot be empty")
}

func TestManager_RemoveReplica(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RegisterAuthenticatedReplica("replica-1", "node-a", "did:sync:abc", nil, nil, false)
	require.NoError(t, err)

	require.NoError(t, m.RemoveReplica("replica-1"))

	_, err = m.GetReplica("replica-1")
	assert.ErrorIs(t, err, ErrReplicaNotFound)

	// DID-индекс чистится вместе с репликой
	_, err = m.GetReplicaByDID("did:sync:abc")
	assert.ErrorIs(t, err, ErrReplicaNotFound)

	assert.ErrorIs(t, m.RemoveReplica("replica-1"), ErrReplicaNotFound)
}

func TestManager_UpdateReplicaStatus(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RegisterReplica("replica-1", "node-a", "")
	require.NoError(t, err)

	// secondary -> syncing считается успешной синхронизацией
	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusSyncing, 1024, 250))

	replica, err := m.GetReplica("replica-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReplicaStatusSyncing, replica.Status)
	assert.Equal(t, int64(1024), replica.LagBytes)
	assert.Equal(t, int64(250), replica.LagMillis)

	stats := m.GetSyncStats("node-a")
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 0, stats.Failed)

	// syncing -> failed увеличивает счетчик неуспешных
	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusFailed, -1, -1))

	stats = m.GetSyncStats("node-a")
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.Failed)

	// Повторный переход в тот же статус счетчики не трогает
	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusFailed, -1, -1))
	stats = m.GetSyncStats("node-a")
	assert.Equal(t, 1, stats.Failed)

	assert.ErrorIs(t, m.UpdateReplicaStatus("unknown", models.ReplicaStatusSyncing, 0, 0), ErrReplicaNotFound)
}

func TestManager_UpdateReplicaStatus_NegativeLagKeepsPrevious(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RegisterReplica("replica-1", "node-a", "")
	require.NoError(t, err)

	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusSyncing, 2048, 500))
	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusSecondary, -1, -1))

	replica, err := m.GetReplica("replica-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), replica.LagBytes)
	assert.Equal(t, int64(500), replica.LagMillis)
}

func TestManager_GetSyncStats_UnknownNode(t *testing.T) {
	m := newTestManager(t)

	stats := m.GetSyncStats("unknown")
	assert.Equal(t, models.SyncStats{}, stats)
}

func TestManager_Events(t *testing.T) {
	m := newTestManager(t)

	ch, unsubscribe := m.Subscribe(4)
	defer unsubscribe()

	_, err := m.RegisterReplica("replica-1", "node-a", "")
	require.NoError(t, err)
	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusSyncing, 0, 100))
	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusFailed, -1, -1))

	events := m.GetEvents()
	require.Len(t, events, 3)
	assert.Equal(t, models.ReplicationEventReplicaAdded, events[0].Type)
	assert.Equal(t, models.ReplicationEventReplicaSynced, events[1].Type)
	assert.Equal(t, models.ReplicationEventSyncFailed, events[2].Type)
	assert.Equal(t, "replica-1", events[1].ReplicaID)
	assert.Equal(t, int64(100), events[1].Details["lagMillis"])
	assert.Equal(t, "syncing", events[2].Details["previousStatus"])

	// События публикуются синхронно: к этому моменту они уже в буфере
	select {
	case event := <-ch:
		assert.Equal(t, models.ReplicationEventReplicaAdded, event.Type)
	default:
		t.Fatal("expected a buffered replication event")
	}
}

func TestManager_PersistenceRoundTrip(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	m := New(ctx, store, slog.Default())

	_, err := m.RegisterAuthenticatedReplica("replica-1", "node-a", "did:sync:abc", nil, nil, true)
	require.NoError(t, err)
	require.NoError(t, m.UpdateReplicaStatus("replica-1", models.ReplicaStatusSyncing, 512, 120))

	policy, err := m.CreatePolicy(validPolicy())
	require.NoError(t, err)

	// Close пишет финальный снапшот
	m.Close()

	restored := New(ctx, store, slog.Default())
	defer restored.Close()

	replica, err := restored.GetReplica("replica-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReplicaStatusSyncing, replica.Status)
	assert.Equal(t, int64(120), replica.LagMillis)

	// DID-индекс перестраивается при загрузке
	byDID, err := restored.GetReplicaByDID("did:sync:abc")
	require.NoError(t, err)
	assert.Equal(t, "replica-1", byDID.ID)

	restoredPolicy, err := restored.GetPolicy(policy.ID)
	require.NoError(t, err)
	assert.Equal(t, policy, restoredPolicy)

	stats := restored.GetSyncStats("node-a")
	assert.Equal(t, 1, stats.Synced)

	// Журнал событий не персистится
	assert.Empty(t, restored.GetEvents())
}

func TestManager_PersistenceSkipsMalformedRecords(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	// Снапшот с валидной репликой, репликой с расходящимся id
	// и политикой, не проходящей валидацию
	snapshot := `{"version":1,"updatedAt":1700000000000,"data":{` +
		`"replicas":{` +
		`"replica-1":{"lastSyncTime":"2024-01-01T00:00:00Z","id":"replica-1","nodeId":"node-a","status":"secondary"},` +
		`"replica-2":{"lastSyncTime":"2024-01-01T00:00:00Z","id":"mismatched","nodeId":"node-b","status":"secondary"}` +
		`},` +
		`"policies":{` +
		`"policy-1":{"id":"policy-1","name":"","consistencyLevel":"eventual","replicationFactor":1}` +
		`},` +
		`"syncStats":{"node-a":{"synced":7,"failed":2}}}}`
	require.NoError(t, store.SetItem(ctx, "synckit.replication", snapshot))

	m := New(ctx, store, slog.Default())
	defer m.Close()

	_, err := m.GetReplica("replica-1")
	assert.NoError(t, err)
	_, err = m.GetReplica("replica-2")
	assert.ErrorIs(t, err, ErrReplicaNotFound)

	_, err = m.GetPolicy("policy-1")
	assert.ErrorIs(t, err, ErrPolicyNotFound)

	stats := m.GetSyncStats("node-a")
	assert.Equal(t, 7, stats.Synced)
	assert.Equal(t, 2, stats.Failed)
}

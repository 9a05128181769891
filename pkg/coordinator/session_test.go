package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/synckit/pkg/crypto/software"
	"github.com/iudanet/synckit/pkg/models"
)

func ptr[T any](v T) *T { return &v }

// countEvents считает события заданного типа в журнале
func countEvents(events []models.SyncEvent, eventType models.SyncEventType) int {
	count := 0
	for _, event := range events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

func TestCoordinator_CreateSyncSession(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.RegisterNode(testRegistration("node-a"))
	require.NoError(t, err)

	// Участники существовать не обязаны: идентификаторы сохраняются как есть
	session, err := c.CreateSyncSession("node-a", []string{"node-b", "ghost-node"})
	require.NoError(t, err)
	require.NotNil(t, session)

	_, err = uuid.Parse(session.ID)
	assert.NoError(t, err, "session id must be a UUID")
	assert.Equal(t, "node-a", session.InitiatorID)
	assert.Equal(t, models.SessionStatusPending, session.Status)
	assert.Equal(t, []string{"node-b", "ghost-node"}, session.ParticipantIDs)
	assert.False(t, session.StartTime.IsZero())
	assert.Nil(t, session.EndTime)

	stored, err := c.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session, stored)

	events := c.GetEvents()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.SyncEventSyncStarted, last.Type)
	assert.Equal(t, session.ID, last.SessionID)
}

func TestCoordinator_CreateSyncSession_UnregisteredInitiator(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.CreateSyncSession("node-x", []string{"node-b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Contains(t, err.Error(), "initiator node-x is not a registered node")
}

func TestCoordinator_GetSession_NotFound(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.GetSession("unknown")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCoordinator_CreateAuthenticatedSyncSession(t *testing.T) {
	c := newTestCoordinator(t)

	local := software.New()
	_, err := local.GenerateIdentity(context.Background())
	require.NoError(t, err)
	c.ConfigureCrypto(local)

	_, identA := newIdentity(t)
	_, identB := newIdentity(t)
	_, err = c.RegisterAuthenticatedNode(testRegistration("node-a"), identA)
	require.NoError(t, err)
	_, err = c.RegisterAuthenticatedNode(testRegistration("node-b"), identB)
	require.NoError(t, err)

	session, err := c.CreateAuthenticatedSyncSession(identA.DID, []string{identB.DID}, &SessionOptions{
		EncryptionMode:       models.EncryptionModeSession,
		RequiredCapabilities: []string{"sync"},
		TokenTTL:             time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, "node-a", session.InitiatorID)
	assert.Equal(t, identA.DID, session.InitiatorDID)
	assert.Equal(t, models.SessionStatusPending, session.Status)
	assert.Equal(t, []string{"node-b"}, session.ParticipantIDs)
	assert.Equal(t, []string{identB.DID}, session.ParticipantDIDs)
	assert.Equal(t, models.EncryptionModeSession, session.EncryptionMode)
	assert.Equal(t, []string{"sync"}, session.RequiredCapabilities)
	require.NotEmpty(t, session.SessionToken)

	// Токен выпущен локальной идентичностью на DID участника
	verification := local.VerifyToken(session.SessionToken, []string{"sync"})
	assert.True(t, verification.Authorized, verification.Error)
	assert.Equal(t, local.LocalDID(), verification.IssuerDID)
	assert.Equal(t, identB.DID, verification.AudienceDID)
}

func TestCoordinator_CreateAuthenticatedSyncSession_DropsUnresolved(t *testing.T) {
	c := newTestCoordinator(t)

	local := software.New()
	_, err := local.GenerateIdentity(context.Background())
	require.NoError(t, err)
	c.ConfigureCrypto(local)

	_, identA := newIdentity(t)
	_, identB := newIdentity(t)
	_, err = c.RegisterAuthenticatedNode(testRegistration("node-a"), identA)
	require.NoError(t, err)
	_, err = c.RegisterAuthenticatedNode(testRegistration("node-b"), identB)
	require.NoError(t, err)

	// Нерезолвящийся DID выбрасывается из участников, но остается
	// в списке DID; токен адресуется первому DID из входного списка
	session, err := c.CreateAuthenticatedSyncSession(identA.DID, []string{"did:sync:ghost", identB.DID}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"node-b"}, session.ParticipantIDs)
	assert.Equal(t, []string{"did:sync:ghost", identB.DID}, session.ParticipantDIDs)

	verification := local.VerifyToken(session.SessionToken, nil)
	require.True(t, verification.Authorized, verification.Error)
	assert.Equal(t, "did:sync:ghost", verification.AudienceDID)
}

func TestCoordinator_CreateAuthenticatedSyncSession_UnknownInitiator(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.CreateAuthenticatedSyncSession("did:sync:ghost", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Contains(t, err.Error(), "initiator DID did:sync:ghost is not a registered node")
}

func TestCoordinator_CreateAuthenticatedSyncSession_NoProvider(t *testing.T) {
	c := newTestCoordinator(t)

	_, identA := newIdentity(t)
	_, identB := newIdentity(t)
	_, err := c.RegisterAuthenticatedNode(testRegistration("node-a"), identA)
	require.NoError(t, err)
	_, err = c.RegisterAuthenticatedNode(testRegistration("node-b"), identB)
	require.NoError(t, err)

	// Без провайдера сессия создается без токена
	session, err := c.CreateAuthenticatedSyncSession(identA.DID, []string{identB.DID}, nil)
	require.NoError(t, err)
	assert.Empty(t, session.SessionToken)

	// Неинициализированный провайдер токен тоже не выпускает
	c.ConfigureCrypto(software.New())
	session, err = c.CreateAuthenticatedSyncSession(identA.DID, []string{identB.DID}, nil)
	require.NoError(t, err)
	assert.Empty(t, session.SessionToken)
}

func TestCoordinator_VerifyNodeCapabilities(t *testing.T) {
	c := newTestCoordinator(t)

	local := software.New()
	_, err := local.GenerateIdentity(context.Background())
	require.NoError(t, err)
	c.ConfigureCrypto(local)

	_, identA := newIdentity(t)
	_, identB := newIdentity(t)
	_, err = c.RegisterAuthenticatedNode(testRegistration("node-a"), identA)
	require.NoError(t, err)
	_, err = c.RegisterAuthenticatedNode(testRegistration("node-b"), identB)
	require.NoError(t, err)

	session, err := c.CreateAuthenticatedSyncSession(identA.DID, []string{identB.DID}, &SessionOptions{
		RequiredCapabilities: []string{"sync"},
	})
	require.NoError(t, err)

	result, err := c.VerifyNodeCapabilities(session.ID, identB.DID, session.SessionToken)
	require.NoError(t, err)
	assert.True(t, result.Authorized, result.Error)

	// Токен адресован identB: другой узел его предъявить не может
	result, err = c.VerifyNodeCapabilities(session.ID, identA.DID, session.SessionToken)
	require.NoError(t, err)
	assert.False(t, result.Authorized)
	assert.Contains(t, result.Error, "token not addressed to "+identA.DID)

	// Токен без требуемой сессией capability
	narrow, err := local.IssueToken(identB.DID, []string{"read"}, time.Hour)
	require.NoError(t, err)

	result, err = c.VerifyNodeCapabilities(session.ID, identB.DID, narrow)
	require.NoError(t, err)
	assert.False(t, result.Authorized)
	assert.Contains(t, result.Error, "missing capability: sync")

	_, err = c.VerifyNodeCapabilities("unknown-session", identB.DID, session.SessionToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCoordinator_VerifyNodeCapabilities_NoProvider(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.RegisterNode(testRegistration("node-a"))
	require.NoError(t, err)
	session, err := c.CreateSyncSession("node-a", nil)
	require.NoError(t, err)

	// Без криптопровайдера проверка всегда успешна
	result, err := c.VerifyNodeCapabilities(session.ID, "did:sync:any", "not-a-token")
	require.NoError(t, err)
	assert.True(t, result.Authorized)
}

func TestCoordinator_UpdateSyncSession(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.RegisterNode(testRegistration("node-a"))
	require.NoError(t, err)
	session, err := c.CreateSyncSession("node-a", []string{"node-b"})
	require.NoError(t, err)

	// nil-поля не изменяют текущие значения
	updated, err := c.UpdateSyncSession(session.ID, models.SessionUpdate{ItemsSynced: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPending, updated.Status)
	assert.Equal(t, 5, updated.ItemsSynced)
	assert.Nil(t, updated.EndTime)

	updated, err = c.UpdateSyncSession(session.ID, models.SessionUpdate{Status: ptr(models.SessionStatusActive)})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, updated.Status)
	assert.Nil(t, updated.EndTime)

	// Первый переход в терминальный статус штампует EndTime
	updated, err = c.UpdateSyncSession(session.ID, models.SessionUpdate{
		Status:      ptr(models.SessionStatusCompleted),
		ItemsSynced: ptr(10),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, updated.Status)
	require.NotNil(t, updated.EndTime)
	endTime := *updated.EndTime

	// Повторное обновление терминальной сессии не перештамповывает
	// EndTime и не порождает второго события
	updated, err = c.UpdateSyncSession(session.ID, models.SessionUpdate{ItemsFailed: ptr(1)})
	require.NoError(t, err)
	require.NotNil(t, updated.EndTime)
	assert.True(t, endTime.Equal(*updated.EndTime))
	assert.Equal(t, 1, updated.ItemsFailed)

	assert.Equal(t, 1, countEvents(c.GetEvents(), models.SyncEventSyncCompleted))

	_, err = c.UpdateSyncSession("unknown", models.SessionUpdate{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCoordinator_RecordConflict(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.RegisterNode(testRegistration("node-a"))
	require.NoError(t, err)
	session, err := c.CreateSyncSession("node-a", []string{"node-b"})
	require.NoError(t, err)

	c.RecordConflict(session.ID, "node-b", map[string]any{"key": "users/42"})
	c.RecordConflict(session.ID, "node-b", nil)

	stored, err := c.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ConflictsDetected)

	events := c.GetEvents()
	assert.Equal(t, 2, countEvents(events, models.SyncEventConflictDetected))
	last := events[len(events)-1]
	assert.Equal(t, session.ID, last.SessionID)
	assert.Equal(t, "node-b", last.NodeID)

	// Конфликт в неизвестной сессии - no-op
	before := len(c.GetEvents())
	c.RecordConflict("unknown", "node-b", nil)
	assert.Len(t, c.GetEvents(), before)
}

func TestCoordinator_ListSessions(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.RegisterNode(testRegistration("node-a"))
	require.NoError(t, err)

	assert.Empty(t, c.ListSessions())

	_, err = c.CreateSyncSession("node-a", nil)
	require.NoError(t, err)
	_, err = c.CreateSyncSession("node-a", []string{"node-b"})
	require.NoError(t, err)

	assert.Len(t, c.ListSessions(), 2)
}

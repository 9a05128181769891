package coordinator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/synckit/pkg/crypto"
	"github.com/iudanet/synckit/pkg/models"
)

// SessionOptions - опции аутентифицированной сессии синхронизации.
type SessionOptions struct {
	EncryptionMode       models.EncryptionMode // EncryptionMode режим шифрования сессии
	RequiredCapabilities []string              // RequiredCapabilities требуемые от участников capabilities
	TokenTTL             time.Duration         // TokenTTL срок действия токена сессии (0 - по умолчанию провайдера)
}

// CreateSyncSession создает сессию синхронизации. Инициатор обязан быть
// зарегистрированным узлом; участники существовать не обязаны - их
// идентификаторы сохраняются как есть.
func (c *Coordinator) CreateSyncSession(initiatorID string, participantIDs []string) (*models.SyncSession, error) {
	c.mu.Lock()
	if _, ok := c.nodes[initiatorID]; !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: initiator %s is not a registered node", ErrNodeNotFound, initiatorID)
	}

	session := &models.SyncSession{
		StartTime:      time.Now().UTC(),
		ID:             uuid.NewString(),
		InitiatorID:    initiatorID,
		Status:         models.SessionStatusPending,
		ParticipantIDs: append([]string(nil), participantIDs...),
	}

	c.sessions[session.ID] = session
	c.appendEventLocked(models.SyncEventSyncStarted, initiatorID, session.ID,
		map[string]any{"participants": len(participantIDs)})
	c.mu.Unlock()

	c.logger.Info("Sync session created",
		"session_id", session.ID,
		"initiator_id", initiatorID,
		"participants", len(participantIDs))

	return session.Clone(), nil
}

// CreateAuthenticatedSyncSession создает сессию по криптографическим
// идентичностям. DID инициатора обязан резолвиться в зарегистрированный
// узел; DID участников, не резолвящиеся в узлы, выбрасываются из списка
// участников с предупреждением. При инициализированном криптопровайдере
// выпускается ровно один токен сессии, адресованный первому DID из
// списка участников.
func (c *Coordinator) CreateAuthenticatedSyncSession(initiatorDID string, participantDIDs []string, opts *SessionOptions) (*models.SyncSession, error) {
	c.mu.RLock()
	provider := c.provider
	initiatorNodeID, ok := c.nodesByDID[initiatorDID]
	participantIDs := make([]string, 0, len(participantDIDs))
	var dropped []string
	for _, did := range participantDIDs {
		nodeID, resolved := c.nodesByDID[did]
		if !resolved {
			dropped = append(dropped, did)
			continue
		}
		participantIDs = append(participantIDs, nodeID)
	}
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: initiator DID %s is not a registered node", ErrNodeNotFound, initiatorDID)
	}
	for _, did := range dropped {
		c.logger.Warn("Dropping unresolved participant DID from session", "did", did)
	}

	session := &models.SyncSession{
		StartTime:       time.Now().UTC(),
		ID:              uuid.NewString(),
		InitiatorID:     initiatorNodeID,
		InitiatorDID:    initiatorDID,
		Status:          models.SessionStatusPending,
		ParticipantIDs:  participantIDs,
		ParticipantDIDs: append([]string(nil), participantDIDs...),
	}
	if opts != nil {
		session.EncryptionMode = opts.EncryptionMode
		session.RequiredCapabilities = append([]string(nil), opts.RequiredCapabilities...)
	}

	if provider != nil && provider.IsInitialized() && len(participantDIDs) > 0 {
		var ttl time.Duration
		if opts != nil {
			ttl = opts.TokenTTL
		}
		// Токен выпускается один, на первый DID из списка. Остальные
		// участники получают его вне этого координатора.
		token, err := provider.IssueToken(participantDIDs[0], session.RequiredCapabilities, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to issue session token: %w", err)
		}
		session.SessionToken = token
		if len(participantDIDs) > 1 {
			c.logger.Warn("Session token addressed to first participant only",
				"audience_did", participantDIDs[0],
				"participants", len(participantDIDs))
		}
	}

	c.mu.Lock()
	c.sessions[session.ID] = session
	c.appendEventLocked(models.SyncEventSyncStarted, initiatorNodeID, session.ID,
		map[string]any{"participants": len(participantIDs), "authenticated": true})
	c.mu.Unlock()

	c.logger.Info("Authenticated sync session created",
		"session_id", session.ID,
		"initiator_did", initiatorDID,
		"participants", len(participantIDs))

	return session.Clone(), nil
}

// VerifyNodeCapabilities проверяет capability-токен узла против
// требований сессии. Без криптопровайдера проверка всегда успешна.
func (c *Coordinator) VerifyNodeCapabilities(sessionID, nodeDID, token string) (*crypto.TokenVerification, error) {
	c.mu.RLock()
	provider := c.provider
	session, ok := c.sessions[sessionID]
	var required []string
	if ok {
		required = append([]string(nil), session.RequiredCapabilities...)
	}
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if provider == nil {
		return &crypto.TokenVerification{Authorized: true}, nil
	}

	result := provider.VerifyToken(token, required)
	if result.Authorized && result.AudienceDID != "" && result.AudienceDID != "*" && result.AudienceDID != nodeDID {
		result.Authorized = false
		result.Error = fmt.Sprintf("token not addressed to %s", nodeDID)
	}
	return result, nil
}

// GetSession возвращает сессию по идентификатору.
func (c *Coordinator) GetSession(id string) (*models.SyncSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	session, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session.Clone(), nil
}

// ListSessions возвращает все сессии без определенного порядка.
func (c *Coordinator) ListSessions() []*models.SyncSession {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*models.SyncSession, 0, len(c.sessions))
	for _, session := range c.sessions {
		result = append(result, session.Clone())
	}
	return result
}

// UpdateSyncSession применяет частичное обновление сессии: nil-поля
// не изменяют текущие значения. Первый переход в completed или failed
// штампует EndTime и публикует событие sync-completed; повторные
// обновления терминального статуса событий не порождают.
func (c *Coordinator) UpdateSyncSession(id string, update models.SessionUpdate) (*models.SyncSession, error) {
	c.mu.Lock()
	session, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	wasTerminal := session.IsTerminal()

	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.ItemsSynced != nil {
		session.ItemsSynced = *update.ItemsSynced
	}
	if update.ItemsFailed != nil {
		session.ItemsFailed = *update.ItemsFailed
	}
	if update.ConflictsDetected != nil {
		session.ConflictsDetected = *update.ConflictsDetected
	}

	completedNow := !wasTerminal && session.IsTerminal()
	if completedNow {
		if session.EndTime == nil {
			now := time.Now().UTC()
			session.EndTime = &now
		}
		c.appendEventLocked(models.SyncEventSyncCompleted, session.InitiatorID, id,
			map[string]any{"status": string(session.Status), "items_synced": session.ItemsSynced})
	}
	result := session.Clone()
	c.mu.Unlock()

	if completedNow {
		c.logger.Info("Sync session finished",
			"session_id", id,
			"status", string(result.Status),
			"items_synced", result.ItemsSynced,
			"items_failed", result.ItemsFailed)
	}

	return result, nil
}

// RecordConflict фиксирует конфликт в сессии: инкремент счетчика
// и событие conflict-detected. Для неизвестной сессии - no-op.
func (c *Coordinator) RecordConflict(sessionID, nodeID string, data map[string]any) {
	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("Conflict reported for unknown session", "session_id", sessionID)
		return
	}

	session.ConflictsDetected++
	c.appendEventLocked(models.SyncEventConflictDetected, nodeID, sessionID, data)
	c.mu.Unlock()
}

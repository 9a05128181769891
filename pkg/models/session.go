package models

import "time"

// SessionStatus описывает состояние сессии синхронизации.
type SessionStatus string

const (
	// SessionStatusPending сессия создана, обмен еще не начался
	SessionStatusPending SessionStatus = "pending"
	// SessionStatusActive сессия выполняет обмен данными
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted сессия завершена успешно
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusFailed сессия завершена с ошибкой
	SessionStatusFailed SessionStatus = "failed"
)

// EncryptionMode определяет способ шифрования полезной нагрузки.
type EncryptionMode string

const (
	// EncryptionModeNone шифрование отключено
	EncryptionModeNone EncryptionMode = "none"
	// EncryptionModeSession симметричное шифрование сессионным ключом (ECDH + AES-GCM)
	EncryptionModeSession EncryptionMode = "session"
	// EncryptionModeAsymmetric асимметричное шифрование с эфемерным ключом (ECIES)
	EncryptionModeAsymmetric EncryptionMode = "asymmetric"
)

// SyncSession представляет сессию синхронизации между инициатором
// и участниками. Создается только если инициатор зарегистрирован;
// EndTime устанавливается ровно один раз при первом переходе
// в completed или failed.
type SyncSession struct {
	StartTime            time.Time      `json:"startTime"`                      // StartTime время создания сессии
	EndTime              *time.Time     `json:"endTime,omitempty"`              // EndTime время завершения (completed/failed)
	ID                   string         `json:"id"`                             // ID уникальный идентификатор сессии (UUID)
	InitiatorID          string         `json:"initiatorId"`                    // InitiatorID идентификатор узла-инициатора
	InitiatorDID         string         `json:"initiatorDid,omitempty"`         // InitiatorDID DID инициатора (аутентифицированные сессии)
	SessionToken         string         `json:"sessionToken,omitempty"`         // SessionToken capability-токен сессии
	Status               SessionStatus  `json:"status"`                         // Status текущий статус сессии
	EncryptionMode       EncryptionMode `json:"encryptionMode,omitempty"`       // EncryptionMode режим шифрования сессии
	ParticipantIDs       []string       `json:"participantIds"`                 // ParticipantIDs упорядоченный список участников
	ParticipantDIDs      []string       `json:"participantDids,omitempty"`      // ParticipantDIDs DID участников (аутентифицированные сессии)
	RequiredCapabilities []string       `json:"requiredCapabilities,omitempty"` // RequiredCapabilities требуемые capabilities участников
	ItemsSynced          int            `json:"itemsSynced"`                    // ItemsSynced количество синхронизированных элементов
	ItemsFailed          int            `json:"itemsFailed"`                    // ItemsFailed количество элементов с ошибками
	ConflictsDetected    int            `json:"conflictsDetected"`              // ConflictsDetected количество обнаруженных конфликтов
}

// SessionUpdate описывает частичное обновление сессии.
// nil-поля не изменяют текущее значение.
type SessionUpdate struct {
	Status            *SessionStatus // Status новый статус сессии
	ItemsSynced       *int           // ItemsSynced новое значение счетчика синхронизированных
	ItemsFailed       *int           // ItemsFailed новое значение счетчика ошибок
	ConflictsDetected *int           // ConflictsDetected новое значение счетчика конфликтов
}

// Clone создает глубокую копию сессии.
func (s *SyncSession) Clone() *SyncSession {
	clone := *s

	clone.ParticipantIDs = append([]string(nil), s.ParticipantIDs...)
	clone.ParticipantDIDs = append([]string(nil), s.ParticipantDIDs...)
	clone.RequiredCapabilities = append([]string(nil), s.RequiredCapabilities...)

	if s.EndTime != nil {
		endTime := *s.EndTime
		clone.EndTime = &endTime
	}

	return &clone
}

// IsTerminal возвращает true, если сессия находится в конечном состоянии.
func (s *SyncSession) IsTerminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusFailed
}

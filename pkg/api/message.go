package api

import (
	"encoding/json"
	"time"
)

// MessageType тип протокольного сообщения.
type MessageType string

const (
	// MessageTypeHandshake установление соединения и обмен возможностями
	MessageTypeHandshake MessageType = "handshake"
	// MessageTypeSyncRequest запрос данных для синхронизации
	MessageTypeSyncRequest MessageType = "sync-request"
	// MessageTypeSyncResponse ответ с данными синхронизации
	MessageTypeSyncResponse MessageType = "sync-response"
	// MessageTypeAck подтверждение получения сообщения
	MessageTypeAck MessageType = "ack"
	// MessageTypeError сообщение об ошибке протокола
	MessageTypeError MessageType = "error"
)

// AuthInfo опциональный блок аутентификации сообщения.
// Имена полей фиксированы каноническим wire-форматом и не должны меняться:
// существующие пиры разбирают именно их.
type AuthInfo struct {
	SenderDID   string `json:"senderDID,omitempty"`   // SenderDID DID отправителя
	ReceiverDID string `json:"receiverDID,omitempty"` // ReceiverDID DID получателя
	UCAN        string `json:"ucan,omitempty"`        // UCAN capability-токен отправителя
	Signature   []byte `json:"signature,omitempty"`   // Signature подпись полезной нагрузки
	Encrypted   bool   `json:"encrypted,omitempty"`   // Encrypted признак шифрования payload
}

// SyncMessage каноническая форма протокольного сообщения.
// Сериализованный вид {type, version, sender, receiver, messageId,
// timestamp, payload, auth?} должен сохраняться как есть для
// совместимости с существующими пирами.
type SyncMessage struct {
	Timestamp time.Time       `json:"timestamp" validate:"required"`                                                 // Timestamp время создания сообщения
	Auth      *AuthInfo       `json:"auth,omitempty"`                                                                // Auth опциональный блок аутентификации
	Type      MessageType     `json:"type" validate:"required,oneof=handshake sync-request sync-response ack error"` // Type тип сообщения
	Version   string          `json:"version"`                                                                       // Version версия протокола
	Sender    string          `json:"sender" validate:"required"`                                                    // Sender идентификатор отправителя
	Receiver  string          `json:"receiver"`                                                                      // Receiver идентификатор получателя
	MessageID string          `json:"messageId" validate:"required"`                                                 // MessageID уникальный идентификатор сообщения
	Payload   json.RawMessage `json:"payload"`                                                                       // Payload непрозрачная полезная нагрузка
}

// Clone создает глубокую копию сообщения.
func (m *SyncMessage) Clone() *SyncMessage {
	clone := *m

	clone.Payload = append(json.RawMessage(nil), m.Payload...)

	if m.Auth != nil {
		auth := *m.Auth
		auth.Signature = append([]byte(nil), m.Auth.Signature...)
		clone.Auth = &auth
	}

	return &clone
}

// SyncResponsePayload полезная нагрузка sync-response сообщения.
type SyncResponsePayload struct {
	Data    any  `json:"data"`    // Data передаваемые данные
	HasMore bool `json:"hasMore"` // HasMore остались ли еще данные
	Offset  int  `json:"offset"`  // Offset смещение для следующего запроса
}

// AckPayload полезная нагрузка ack сообщения.
type AckPayload struct {
	AckMessageID string `json:"ackMessageId"` // AckMessageID идентификатор подтвержденного сообщения
}

// ErrorPayload полезная нагрузка error сообщения.
type ErrorPayload struct {
	Error            string `json:"error"`                      // Error описание ошибки
	RelatedMessageID string `json:"relatedMessageId,omitempty"` // RelatedMessageID сообщение, к которому относится ошибка
}

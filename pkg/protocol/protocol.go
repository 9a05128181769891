// Package protocol реализует протокольный слой синхронизации:
// конструирование, валидацию и (де)сериализацию сообщений, журнал
// handshake-записей, подпись и шифрование поверх криптографической
// capability и дебаунс-персистентность журнала. Транспорт пакет не
// реализует: доставка сообщений - ответственность host-приложения.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iudanet/synckit/internal/canonical"
	"github.com/iudanet/synckit/internal/clock"
	"github.com/iudanet/synckit/internal/persist"
	"github.com/iudanet/synckit/pkg/api"
	"github.com/iudanet/synckit/pkg/crypto"
	"github.com/iudanet/synckit/pkg/storage"
)

// ProtocolVersion - версия протокола, проставляемая в каждое сообщение
const ProtocolVersion = "1.0.0"

// storageKey - ключ снапшота протокольного состояния в storage capability
const storageKey = "synckit.protocol"

// ErrorRecord - запись журнала протокольных ошибок.
type ErrorRecord struct {
	Timestamp        time.Time `json:"timestamp"`                  // Timestamp время регистрации ошибки
	Code             string    `json:"code"`                       // Code машинный код ошибки
	Message          string    `json:"message"`                    // Message описание ошибки
	RelatedMessageID string    `json:"relatedMessageId,omitempty"` // RelatedMessageID сообщение, вызвавшее ошибку
	Recoverable      bool      `json:"recoverable"`                // Recoverable можно ли продолжать после ошибки
}

// errorCodeSync - код, под которым error-сообщения попадают в журнал ошибок
const errorCodeSync = "sync-error"

// Protocol - протокольный слой одного узла. Безопасен для конкурентного
// использования.
type Protocol struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	provider   crypto.Provider
	config     *Config
	saver      *persist.Saver
	seq        *clock.Sequence
	validate   *validator.Validate
	byID       map[string]*api.SyncMessage
	handshakes map[string]*api.Handshake
	messages   []*api.SyncMessage
	errorLog   []ErrorRecord
	nodeID     string
}

// New создает протокольный слой узла nodeID. Если store не nil, из него
// восстанавливается ранее сохраненное состояние, а изменения журнала
// сохраняются обратно с дебаунсом. Без криптографии (до ConfigureCrypto)
// действует разрешающий no-op провайдер.
func New(ctx context.Context, nodeID string, store storage.Store, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Protocol{
		logger:     logger,
		provider:   crypto.NewNoopProvider(),
		config:     DefaultConfig(),
		seq:        clock.NewSequence(),
		validate:   validator.New(),
		byID:       make(map[string]*api.SyncMessage),
		handshakes: make(map[string]*api.Handshake),
		nodeID:     nodeID,
	}

	p.saver = persist.NewSaver(store, storageKey, persist.DefaultDelay, logger, p.snapshot)
	p.loadPersistedState(ctx, store)

	return p
}

// NodeID возвращает идентификатор локального узла.
func (p *Protocol) NodeID() string { return p.nodeID }

// CreateHandshakeMessage создает handshake-сообщение без аутентификации:
// узел представляется и объявляет свои возможности.
func (p *Protocol) CreateHandshakeMessage(nodeID string, capabilities []string) (*api.SyncMessage, error) {
	handshake := &api.Handshake{
		ProtocolVersion: ProtocolVersion,
		NodeID:          nodeID,
		State:           api.HandshakeStateInitiating,
		Capabilities:    capabilities,
	}

	payload, err := canonical.Marshal(handshake)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal handshake: %w", err)
	}

	msg := p.newMessage(api.MessageTypeHandshake, nodeID, "", payload)
	p.appendMessage(msg)
	return msg.Clone(), nil
}

// CreateSyncRequestMessage создает запрос синхронизации с непрозрачной
// полезной нагрузкой.
func (p *Protocol) CreateSyncRequestMessage(sender, receiver string, payload any) (*api.SyncMessage, error) {
	raw, err := canonical.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := p.newMessage(api.MessageTypeSyncRequest, sender, receiver, raw)
	p.appendMessage(msg)
	return msg.Clone(), nil
}

// CreateSyncResponseMessage создает ответ синхронизации с данными
// и курсором пагинации.
func (p *Protocol) CreateSyncResponseMessage(sender, receiver string, data any, hasMore bool, offset int) (*api.SyncMessage, error) {
	raw, err := canonical.Marshal(api.SyncResponsePayload{
		Data:    data,
		HasMore: hasMore,
		Offset:  offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := p.newMessage(api.MessageTypeSyncResponse, sender, receiver, raw)
	p.appendMessage(msg)
	return msg.Clone(), nil
}

// CreateAckMessage создает подтверждение получения сообщения.
func (p *Protocol) CreateAckMessage(sender, receiver, ackMessageID string) (*api.SyncMessage, error) {
	raw, err := canonical.Marshal(api.AckPayload{AckMessageID: ackMessageID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := p.newMessage(api.MessageTypeAck, sender, receiver, raw)
	p.appendMessage(msg)
	return msg.Clone(), nil
}

// CreateErrorMessage создает error-сообщение и дублирует ошибку
// в журнал протокольных ошибок.
func (p *Protocol) CreateErrorMessage(sender, receiver, errorMessage, relatedMessageID string) (*api.SyncMessage, error) {
	raw, err := canonical.Marshal(api.ErrorPayload{
		Error:            errorMessage,
		RelatedMessageID: relatedMessageID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := p.newMessage(api.MessageTypeError, sender, receiver, raw)

	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.byID[msg.MessageID] = msg
	p.errorLog = append(p.errorLog, ErrorRecord{
		Timestamp:        msg.Timestamp,
		Code:             errorCodeSync,
		Message:          errorMessage,
		RelatedMessageID: relatedMessageID,
		Recoverable:      true,
	})
	p.mu.Unlock()

	p.saver.Schedule()
	return msg.Clone(), nil
}

// RecordMessage регистрирует входящее сообщение в журнале: счетчик
// идентификаторов подтягивается по номеру из messageId, handshake-записи
// сохраняются в карту по узлу отправителя. Повторная регистрация того же
// messageId игнорируется.
func (p *Protocol) RecordMessage(msg *api.SyncMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if result := p.ValidateMessage(msg); !result.Valid {
		return fmt.Errorf("invalid message: %s", strings.Join(result.Errors, "; "))
	}

	// Номер из чужого messageId двигает локальный счетчик вперед,
	// чтобы новые идентификаторы не пересекались с принятыми
	if seq, ok := parseMessageSeq(msg.MessageID); ok {
		p.seq.Observe(seq)
	}

	stored := msg.Clone()

	p.mu.Lock()
	if _, exists := p.byID[stored.MessageID]; exists {
		p.mu.Unlock()
		return nil
	}
	p.messages = append(p.messages, stored)
	p.byID[stored.MessageID] = stored

	if stored.Type == api.MessageTypeHandshake {
		var handshake api.Handshake
		if err := json.Unmarshal(stored.Payload, &handshake); err == nil && handshake.NodeID != "" {
			p.handshakes[handshake.NodeID] = &handshake
		}
	}
	p.mu.Unlock()

	p.saver.Schedule()
	return nil
}

// GetMessage возвращает сообщение по идентификатору.
func (p *Protocol) GetMessage(messageID string) (*api.SyncMessage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	msg, ok := p.byID[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return msg.Clone(), nil
}

// GetMessagesByType возвращает все сообщения указанного типа
// в порядке создания.
func (p *Protocol) GetMessagesByType(messageType api.MessageType) []*api.SyncMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []*api.SyncMessage
	for _, msg := range p.messages {
		if msg.Type == messageType {
			result = append(result, msg.Clone())
		}
	}
	return result
}

// GetMessagesBySender возвращает все сообщения указанного отправителя
// в порядке создания.
func (p *Protocol) GetMessagesBySender(sender string) []*api.SyncMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []*api.SyncMessage
	for _, msg := range p.messages {
		if msg.Sender == sender {
			result = append(result, msg.Clone())
		}
	}
	return result
}

// GetPendingMessages возвращает все сообщения, адресованные получателю.
// Журнал не отслеживает доставку: учет потребленных сообщений -
// ответственность host-приложения.
func (p *Protocol) GetPendingMessages(receiver string) []*api.SyncMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []*api.SyncMessage
	for _, msg := range p.messages {
		if msg.Receiver == receiver {
			result = append(result, msg.Clone())
		}
	}
	return result
}

// GetHandshake возвращает последнюю handshake-запись узла.
func (p *Protocol) GetHandshake(nodeID string) (*api.Handshake, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	handshake, ok := p.handshakes[nodeID]
	if !ok {
		return nil, false
	}
	return handshake.Clone(), true
}

// GetErrorLog возвращает копию журнала протокольных ошибок.
func (p *Protocol) GetErrorLog() []ErrorRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]ErrorRecord(nil), p.errorLog...)
}

// MessageCount возвращает количество сообщений в журнале.
func (p *Protocol) MessageCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages)
}

// Close останавливает дебаунс-таймер и пишет финальный снапшот.
func (p *Protocol) Close() {
	p.saver.Close()
}

// newMessage собирает сообщение со свежим messageId.
func (p *Protocol) newMessage(messageType api.MessageType, sender, receiver string, payload json.RawMessage) *api.SyncMessage {
	now := time.Now().UTC()
	return &api.SyncMessage{
		Timestamp: now,
		Type:      messageType,
		Version:   ProtocolVersion,
		Sender:    sender,
		Receiver:  receiver,
		MessageID: fmt.Sprintf("msg-%d-%d", p.seq.Next(), now.UnixMilli()),
		Payload:   payload,
	}
}

// appendMessage добавляет сообщение в журнал и индекс и планирует снапшот.
func (p *Protocol) appendMessage(msg *api.SyncMessage) {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.byID[msg.MessageID] = msg
	p.mu.Unlock()

	p.saver.Schedule()
}

// parseMessageSeq извлекает порядковый номер из messageId вида
// msg-<seq>-<millis>.
func parseMessageSeq(messageID string) (int64, bool) {
	parts := strings.Split(messageID, "-")
	if len(parts) != 3 || parts[0] != "msg" {
		return 0, false
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

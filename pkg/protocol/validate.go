package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iudanet/synckit/internal/canonical"
	"github.com/iudanet/synckit/pkg/api"
)

// ValidationResult - результат структурной проверки сообщения.
type ValidationResult struct {
	Errors []string `json:"errors,omitempty"` // Errors список найденных проблем
	Valid  bool     `json:"valid"`            // Valid сообщение структурно корректно
}

// ValidateMessage выполняет структурную проверку сообщения: тип,
// отправитель, идентификатор и время должны присутствовать, тип - быть
// известным. Проверка никогда не возвращает error.
func (p *Protocol) ValidateMessage(msg *api.SyncMessage) *ValidationResult {
	if msg == nil {
		return &ValidationResult{Errors: []string{"message is nil"}}
	}

	err := p.validate.Struct(msg)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return &ValidationResult{Errors: []string{err.Error()}}
	}

	result := &ValidationResult{}
	for _, fe := range fieldErrors {
		result.Errors = append(result.Errors, describeFieldError(fe, msg))
	}
	return result
}

// describeFieldError переводит ошибку валидатора в человекочитаемую строку.
func describeFieldError(fe validator.FieldError, msg *api.SyncMessage) string {
	switch fe.Field() {
	case "Type":
		if fe.Tag() == "oneof" {
			return fmt.Sprintf("unknown message type: %s", msg.Type)
		}
		return "missing required field: type"
	case "Sender":
		return "missing required field: sender"
	case "MessageID":
		return "missing required field: messageId"
	case "Timestamp":
		return "timestamp is missing or invalid"
	default:
		return fmt.Sprintf("invalid field: %s", fe.Field())
	}
}

// SerializeMessage кодирует сообщение в каноническую JSON-форму:
// детерминированный порядок ключей, NFC-нормализованные строки.
func (p *Protocol) SerializeMessage(msg *api.SyncMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	raw, err := canonical.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}
	return raw, nil
}

// DeserializeMessage разбирает сообщение из JSON и прогоняет его через
// структурную проверку. Непроходящее проверку сообщение - ошибка
// с перечислением найденных проблем.
func (p *Protocol) DeserializeMessage(raw []byte) (*api.SyncMessage, error) {
	var msg api.SyncMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	if result := p.ValidateMessage(&msg); !result.Valid {
		return nil, fmt.Errorf("invalid message: %s", strings.Join(result.Errors, "; "))
	}

	return &msg, nil
}

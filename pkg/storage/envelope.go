package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeVersion - текущая версия формата снапшота
const EnvelopeVersion = 1

// Envelope - версионированный конверт снапшота состояния.
// Снапшоты пишутся в storage только в этой форме.
type Envelope struct {
	Data      json.RawMessage `json:"data"`      // Data сериализованное состояние
	Version   int             `json:"version"`   // Version версия формата конверта
	UpdatedAt int64           `json:"updatedAt"` // UpdatedAt время записи, epoch миллисекунды
}

// WrapSnapshot упаковывает состояние в версионированный конверт
// и возвращает его JSON для записи в storage.
func WrapSnapshot(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	env := Envelope{
		Data:      data,
		Version:   EnvelopeVersion,
		UpdatedAt: time.Now().UnixMilli(),
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return string(raw), nil
}

// UnwrapSnapshot распаковывает конверт снапшота и десериализует
// состояние в out. Возвращает время записи снапшота.
func UnwrapSnapshot(raw string, out any) (int64, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return 0, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if env.Version != EnvelopeVersion {
		return 0, fmt.Errorf("unsupported snapshot version: %d", env.Version)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return 0, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return env.UpdatedAt, nil
}

// Package canonical реализует детерминированное JSON-кодирование
// для контентного хеширования и подписания структур.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Marshal кодирует значение в канонический JSON: ключи объектов
// отсортированы, строки нормализованы в NFC, HTML-экранирование отключено.
// Одинаковые значения на разных узлах дают байт-в-байт одинаковый результат,
// поэтому только этот вид пригоден для вычисления контентных хешей и подписей.
func Marshal(v any) ([]byte, error) {
	// Приводим произвольное значение (структуры, json.RawMessage)
	// к универсальной форме через обычный JSON
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}

	// Кодируем без HTML-экранирования: ключи map encoding/json
	// сортирует сам
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(normalize(generic)); err != nil {
		return nil, fmt.Errorf("failed to encode canonical form: %w", err)
	}

	// json.Encoder добавляет завершающий перевод строки - убираем
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}

	return out, nil
}

// normalize рекурсивно приводит все строки значения к форме NFC.
// Нормализация на границе сериализации гарантирует, что визуально
// одинаковые строки в разных Unicode-представлениях хешируются одинаково.
func normalize(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case map[string]any:
		normalized := make(map[string]any, len(val))
		for k, elem := range val {
			normalized[norm.NFC.String(k)] = normalize(elem)
		}
		return normalized
	case []any:
		normalized := make([]any, len(val))
		for i, elem := range val {
			normalized[i] = normalize(elem)
		}
		return normalized
	default:
		return v
	}
}

// Package events содержит внутрипроцессную шину событий с подписками.
// Доставка неблокирующая: медленный подписчик теряет события, а не
// останавливает издателя.
package events

import (
	"log/slog"
	"sync"
)

// DefaultBuffer - размер буфера канала подписчика по умолчанию
const DefaultBuffer = 16

// Bus - шина событий одного типа. Безопасна для конкурентного
// использования.
type Bus[T any] struct {
	mu     sync.Mutex
	logger *slog.Logger
	subs   map[int]chan T
	next   int
	closed bool
}

// NewBus создает пустую шину.
func NewBus[T any](logger *slog.Logger) *Bus[T] {
	return &Bus[T]{
		logger: logger,
		subs:   make(map[int]chan T),
	}
}

// Subscribe регистрирует подписчика и возвращает канал событий вместе
// с функцией отписки. Отписка идемпотентна и закрывает канал.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}

	return ch, cancel
}

// Publish рассылает событие всем подписчикам. Подписчик с переполненным
// буфером событие теряет: издатель никогда не блокируется.
func (b *Bus[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("Dropping event for slow subscriber")
			}
		}
	}
}

// Close закрывает все каналы подписчиков. Последующие Publish
// игнорируются, последующие Subscribe возвращают закрытый канал.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

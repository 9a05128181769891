// Package persist реализует отложенную запись снапшотов состояния
// в storage capability. Запись дебаунсится: шквал изменений схлопывается
// в один снапшот. Ошибки персистентности логируются и никогда не
// прерывают операцию, которая их вызвала.
package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/synckit/pkg/storage"
)

const (
	// DefaultDelay - задержка дебаунса по умолчанию
	DefaultDelay = 500 * time.Millisecond
	// writeTimeout - бюджет времени на одну запись в storage
	writeTimeout = 5 * time.Second
)

// Snapshot строит сериализуемое представление состояния владельца.
// Вызывается в момент записи, владелец сам заботится о своих блокировках.
type Snapshot func() any

// Saver - дебаунс-писатель снапшотов под одним ключом storage.
// Безопасен для конкурентного использования.
type Saver struct {
	mu       sync.Mutex
	store    storage.Store
	logger   *slog.Logger
	snapshot Snapshot
	timer    *time.Timer
	key      string
	delay    time.Duration
	flushing bool
	pending  bool
	closed   bool
}

// NewSaver создает писатель снапшотов. При nil store возвращается
// писатель-пустышка: Schedule и Flush ничего не делают.
func NewSaver(store storage.Store, key string, delay time.Duration, logger *slog.Logger, snapshot Snapshot) *Saver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Saver{
		store:    store,
		logger:   logger,
		snapshot: snapshot,
		key:      key,
		delay:    delay,
	}
}

// Schedule планирует запись снапшота. Повторные вызовы до истечения
// задержки сдвигают таймер: пишется только последнее состояние.
func (s *Saver) Schedule() {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.flush)
}

// Flush немедленно пишет снапшот, минуя дебаунс. Ошибка записи
// логируется и не возвращается.
func (s *Saver) Flush() {
	if s.store == nil {
		return
	}
	s.flush()
}

// Close останавливает таймер и пишет финальный снапшот.
func (s *Saver) Close() {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.flush()
}

// flush выполняет запись, схлопывая конкурентные вызовы: если запись
// уже идет, выставляется pending и после текущей записи выполняется
// ровно одна дополнительная. Ни один Schedule не теряется.
func (s *Saver) flush() {
	s.mu.Lock()
	if s.flushing {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.flushing = true
	s.mu.Unlock()

	for {
		s.write()

		s.mu.Lock()
		if !s.pending {
			s.flushing = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
	}
}

// write сериализует и пишет один снапшот.
func (s *Saver) write() {
	raw, err := storage.WrapSnapshot(s.snapshot())
	if err != nil {
		s.logger.Error("Failed to marshal state snapshot", "key", s.key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.store.SetItem(ctx, s.key, raw); err != nil {
		s.logger.Error("Failed to persist state snapshot", "key", s.key, "error", err)
	}
}

// Load восстанавливает снапшот из storage в out. Возвращает false, если
// снапшота нет или он нечитаем: поврежденный снапшот логируется как
// предупреждение и трактуется как отсутствующий.
func Load(ctx context.Context, store storage.Store, key string, logger *slog.Logger, out any) bool {
	if store == nil {
		return false
	}

	raw, err := store.GetItem(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrItemNotFound) {
			logger.Warn("Failed to read state snapshot", "key", key, "error", err)
		}
		return false
	}

	if _, err := storage.UnwrapSnapshot(raw, out); err != nil {
		logger.Warn("Ignoring malformed state snapshot", "key", key, "error", err)
		return false
	}

	return true
}

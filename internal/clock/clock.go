// Package clock содержит монотонный счетчик последовательности сообщений.
package clock

import "sync"

// Sequence представляет монотонно возрастающий счетчик для генерации
// идентификаторов сообщений. Счетчик учитывает номера входящих сообщений,
// чтобы локально выданные идентификаторы оставались впереди всех
// наблюдавшихся значений.
type Sequence struct {
	counter int64      // монотонно возрастающий счетчик
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewSequence создает новый счетчик, начинающийся с нуля.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next увеличивает счетчик и возвращает новое значение.
// Используется при конструировании нового локального сообщения.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	return s.counter
}

// Observe обновляет счетчик по номеру, извлеченному из входящего сообщения:
// counter = max(counter, remote). Следующий Next гарантированно вернет
// значение больше remote.
func (s *Sequence) Observe(remote int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if remote > s.counter {
		s.counter = remote
	}
}

// Current возвращает текущее значение счетчика без изменения.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counter
}

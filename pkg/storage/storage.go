// Package storage определяет storage capability ядра синхронизации:
// строковое key-value хранилище, поставляемое host-приложением.
// В пакете лежит реализация в памяти, адаптеры для BoltDB и SQLite -
// в подпакетах boltdb и sqlite.
package storage

import (
	"context"
	"errors"
)

// Ошибки storage capability.
var (
	// ErrItemNotFound запись с таким ключом отсутствует
	ErrItemNotFound = errors.New("item not found")
	// ErrStorageClosed хранилище уже закрыто
	ErrStorageClosed = errors.New("storage is closed")
)

// Store - контракт storage capability. Значения - непрозрачные строки:
// ядро сериализует свои снапшоты само и не полагается на структуру
// значений. Реализация обязана быть безопасной для конкурентного доступа.
type Store interface {
	// GetItem returns the value stored under key or ErrItemNotFound
	GetItem(ctx context.Context, key string) (string, error)

	// SetItem stores the value under key, overwriting any previous value
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes the value stored under key. Removing a missing
	// key is not an error
	RemoveItem(ctx context.Context, key string) error
}

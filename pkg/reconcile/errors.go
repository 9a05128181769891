package reconcile

import "errors"

// Ошибки реконсиляции. Текст ErrCryptoNotInitialized фиксирован
// совместимостью с существующими пирами.
var (
	// ErrNoVersions стратегии реконсиляции требуют хотя бы одну версию
	ErrNoVersions = errors.New("no versions supplied")
	// ErrCryptoNotInitialized операция требует настроенной и
	// инициализированной криптографии
	ErrCryptoNotInitialized = errors.New("crypto provider not initialized")
	// ErrUnknownStrategy неизвестная стратегия реконсиляции
	ErrUnknownStrategy = errors.New("unknown reconciliation strategy")
)

package crypto

import "errors"

// Ошибки криптографической capability.
var (
	// ErrNotConfigured операция требует настоящего провайдера
	ErrNotConfigured = errors.New("crypto provider not configured")
	// ErrNotInitialized провайдер есть, но локальная идентичность не создана
	ErrNotInitialized = errors.New("crypto provider not initialized")
	// ErrUnknownPeer публичные ключи пира не зарегистрированы
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrInvalidKey ключ отсутствует или имеет неверную длину
	ErrInvalidKey = errors.New("invalid key material")
)

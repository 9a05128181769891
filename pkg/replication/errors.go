package replication

import "errors"

// Ошибки менеджера репликации. Текст ErrCryptoNotInitialized фиксирован
// совместимостью с существующими пирами.
var (
	// ErrReplicaNotFound реплика с таким id не зарегистрирована
	ErrReplicaNotFound = errors.New("replica not found")
	// ErrPolicyNotFound политика с таким id не существует
	ErrPolicyNotFound = errors.New("replication policy not found")
	// ErrCryptoNotInitialized операция требует настроенной и
	// инициализированной криптографии
	ErrCryptoNotInitialized = errors.New("crypto provider not initialized")
)

package protocol

import "errors"

// Ошибки протокольного слоя. Тексты ErrCryptoNotInitialized и
// ErrNotHandshake фиксированы wire-совместимостью с существующими пирами.
var (
	// ErrCryptoNotInitialized операция требует настроенной и
	// инициализированной криптографии
	ErrCryptoNotInitialized = errors.New("crypto provider not initialized")
	// ErrNotHandshake сообщение не является handshake
	ErrNotHandshake = errors.New("Message is not a handshake")
	// ErrMessageNotFound сообщение с таким id отсутствует в журнале
	ErrMessageNotFound = errors.New("message not found")
)

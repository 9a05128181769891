package coordinator

import "errors"

var (
	// ErrNodeNotFound узел с указанным идентификатором не зарегистрирован
	ErrNodeNotFound = errors.New("node not found")
	// ErrSessionNotFound сессия с указанным идентификатором не существует
	ErrSessionNotFound = errors.New("session not found")
)

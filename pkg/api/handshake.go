package api

// HandshakeState состояние рукопожатия.
// Состояние записывается как было отправлено: переходы между состояниями
// этим ядром не контролируются.
type HandshakeState string

const (
	// HandshakeStateInitiating сторона инициировала рукопожатие
	HandshakeStateInitiating HandshakeState = "initiating"
	// HandshakeStateResponding сторона отвечает на рукопожатие
	HandshakeStateResponding HandshakeState = "responding"
	// HandshakeStateCompleted рукопожатие завершено
	HandshakeStateCompleted HandshakeState = "completed"
)

// Handshake запись рукопожатия с пиром.
// На каждый узел хранится одна запись: последующее рукопожатие
// перезаписывает предыдущее.
type Handshake struct {
	ProtocolVersion     string         `json:"protocolVersion"`               // ProtocolVersion версия протокола пира
	NodeID              string         `json:"nodeId"`                        // NodeID идентификатор узла пира
	State               HandshakeState `json:"state"`                         // State состояние рукопожатия, как было отправлено
	DID                 string         `json:"did,omitempty"`                 // DID идентичность пира
	UCAN                string         `json:"ucan,omitempty"`                // UCAN capability-токен пира
	Capabilities        []string       `json:"capabilities"`                  // Capabilities возможности пира
	PublicSigningKey    []byte         `json:"publicSigningKey,omitempty"`    // PublicSigningKey публичный ключ подписи пира
	PublicEncryptionKey []byte         `json:"publicEncryptionKey,omitempty"` // PublicEncryptionKey публичный ключ шифрования пира
}

// Clone создает глубокую копию записи рукопожатия.
func (h *Handshake) Clone() *Handshake {
	clone := *h

	clone.Capabilities = append([]string(nil), h.Capabilities...)
	clone.PublicSigningKey = append([]byte(nil), h.PublicSigningKey...)
	clone.PublicEncryptionKey = append([]byte(nil), h.PublicEncryptionKey...)

	return &clone
}

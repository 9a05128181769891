package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/iudanet/synckit/internal/canonical"
	"github.com/iudanet/synckit/pkg/api"
	"github.com/iudanet/synckit/pkg/crypto"
	"github.com/iudanet/synckit/pkg/models"
)

// AudienceAny - wildcard-адресат capability-токена
const AudienceAny = "*"

// Config - настройки криптографического слоя протокола.
type Config struct {
	EncryptionMode       models.EncryptionMode `json:"encryptionMode"`       // EncryptionMode режим шифрования payload
	RequiredCapabilities []string              `json:"requiredCapabilities"` // RequiredCapabilities capabilities, требуемые от пиров
	RequireSignatures    bool                  `json:"requireSignatures"`    // RequireSignatures подписи обязательны
	RequireCapabilities  bool                  `json:"requireCapabilities"`  // RequireCapabilities capability-токены обязательны
}

// DefaultConfig возвращает настройки по умолчанию: без шифрования,
// подписи и токены не требуются.
func DefaultConfig() *Config {
	return &Config{EncryptionMode: models.EncryptionModeNone}
}

// HandshakeVerification - результат проверки аутентифицированного
// handshake. Отказ проверки не является error.
type HandshakeVerification struct {
	Handshake *api.Handshake `json:"handshake,omitempty"` // Handshake разобранная запись при успехе
	Error     string         `json:"error,omitempty"`     // Error причина отказа
	Valid     bool           `json:"valid"`               // Valid проверка пройдена
}

// MessageVerification - результат проверки подписи и расшифровки
// сообщения. Отказ проверки не является error.
type MessageVerification struct {
	Payload json.RawMessage `json:"payload,omitempty"` // Payload расшифрованная полезная нагрузка при успехе
	Error   string          `json:"error,omitempty"`   // Error причина отказа
	Valid   bool            `json:"valid"`             // Valid проверка пройдена
}

// ConfigureCrypto подключает криптографическую capability и настройки
// ее использования. nil-провайдер заменяется разрешающим no-op,
// nil-настройки - настройками по умолчанию.
func (p *Protocol) ConfigureCrypto(provider crypto.Provider, config *Config) {
	if provider == nil {
		provider = crypto.NewNoopProvider()
	}
	if config == nil {
		config = DefaultConfig()
	}

	p.mu.Lock()
	p.provider = provider
	p.config = config
	p.mu.Unlock()
}

// IsCryptoEnabled сообщает, подключен ли провайдер и готова ли его
// локальная идентичность.
func (p *Protocol) IsCryptoEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.provider != nil && p.provider.IsInitialized()
}

// cryptoState возвращает согласованную пару провайдер/настройки.
func (p *Protocol) cryptoState() (crypto.Provider, *Config) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.provider, p.config
}

// CreateAuthenticatedHandshake создает handshake с локальной
// идентичностью: DID и публичные ключи в payload, capability-токен
// и подпись по требованию настроек. targetDID может быть пустым -
// тогда токен выпускается с wildcard-адресатом.
func (p *Protocol) CreateAuthenticatedHandshake(capabilities []string, targetDID string) (*api.SyncMessage, error) {
	if !p.IsCryptoEnabled() {
		return nil, ErrCryptoNotInitialized
	}
	provider, config := p.cryptoState()

	identity, err := provider.ExportPublicIdentity()
	if err != nil {
		return nil, fmt.Errorf("failed to export identity: %w", err)
	}

	handshake := &api.Handshake{
		ProtocolVersion:     ProtocolVersion,
		NodeID:              p.nodeID,
		State:               api.HandshakeStateInitiating,
		DID:                 identity.DID,
		Capabilities:        capabilities,
		PublicSigningKey:    identity.SigningKey,
		PublicEncryptionKey: identity.EncryptionKey,
	}

	auth := &api.AuthInfo{
		SenderDID:   identity.DID,
		ReceiverDID: targetDID,
	}

	if config.RequireCapabilities {
		audience := targetDID
		if audience == "" {
			audience = AudienceAny
		}
		token, err := provider.IssueToken(audience, config.RequiredCapabilities, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to issue capability token: %w", err)
		}
		handshake.UCAN = token
		auth.UCAN = token
	}

	payload, err := canonical.Marshal(handshake)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal handshake: %w", err)
	}

	if config.RequireSignatures {
		signature, err := provider.Sign(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to sign handshake: %w", err)
		}
		auth.Signature = signature
	}

	msg := p.newMessage(api.MessageTypeHandshake, p.nodeID, targetDID, payload)
	msg.Auth = auth
	p.appendMessage(msg)

	return msg.Clone(), nil
}

// VerifyAuthenticatedHandshake проверяет входящий handshake: подпись
// против ключа из payload, capability-токен против требуемого набора.
// Подпись самоудостоверяющая: ключи пира приходят внутри подписанного
// payload, поэтому после успешной проверки они регистрируются
// у провайдера и дальнейшее шифрование к пиру становится возможным.
func (p *Protocol) VerifyAuthenticatedHandshake(msg *api.SyncMessage) (*HandshakeVerification, error) {
	if msg == nil || msg.Type != api.MessageTypeHandshake {
		return nil, ErrNotHandshake
	}
	provider, config := p.cryptoState()

	var handshake api.Handshake
	if err := json.Unmarshal(msg.Payload, &handshake); err != nil {
		return nil, fmt.Errorf("failed to parse handshake payload: %w", err)
	}

	if config.RequireSignatures {
		if msg.Auth == nil || len(msg.Auth.Signature) == 0 {
			return &HandshakeVerification{Error: "Signature required but not present"}, nil
		}

		ok, err := provider.VerifyWithKey(msg.Payload, msg.Auth.Signature, handshake.PublicSigningKey)
		if err != nil {
			return &HandshakeVerification{Error: err.Error()}, nil
		}
		if !ok {
			return &HandshakeVerification{Error: "Invalid signature"}, nil
		}
	}

	// Ключи регистрируются до проверки токена: токен подписан пиром,
	// и его проверка требует знать ключ issuer
	if handshake.DID != "" && len(handshake.PublicSigningKey) > 0 {
		if err := provider.RegisterPeerKeys(handshake.DID, handshake.PublicSigningKey, handshake.PublicEncryptionKey); err != nil {
			return &HandshakeVerification{Error: fmt.Sprintf("failed to register peer keys: %v", err)}, nil
		}
	}

	if config.RequireCapabilities {
		token := handshake.UCAN
		if token == "" && msg.Auth != nil {
			token = msg.Auth.UCAN
		}

		verification := provider.VerifyToken(token, config.RequiredCapabilities)
		if !verification.Authorized {
			return &HandshakeVerification{Error: verification.Error}, nil
		}
	}

	p.mu.Lock()
	p.handshakes[handshake.NodeID] = handshake.Clone()
	p.mu.Unlock()
	p.saver.Schedule()

	return &HandshakeVerification{Valid: true, Handshake: &handshake}, nil
}

// SignMessage подписывает полезную нагрузку сообщения и, по запросу,
// шифрует ее для получателя. Подпись кладется поверх итоговых байт
// payload: при шифровании подписывается шифротекст.
func (p *Protocol) SignMessage(msg *api.SyncMessage, payload any, encrypt bool) (*api.SyncMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}
	if !p.IsCryptoEnabled() {
		return nil, ErrCryptoNotInitialized
	}
	provider, config := p.cryptoState()

	raw, err := canonical.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	auth := &api.AuthInfo{
		SenderDID:   provider.LocalDID(),
		ReceiverDID: msg.Receiver,
	}

	if encrypt && config.EncryptionMode != models.EncryptionModeNone {
		envelope, err := p.encryptPayload(provider, config, raw, msg.Receiver)
		if err != nil {
			return nil, err
		}

		raw, err = json.Marshal(envelope)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal encrypted payload: %w", err)
		}
		auth.Encrypted = true
	}

	signature, err := provider.Sign(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	auth.Signature = signature

	msg.Payload = raw
	msg.Auth = auth

	return msg, nil
}

// VerifyMessage проверяет подпись сообщения и расшифровывает payload.
// Сообщение без auth-блока принимается как есть: это путь совместимости
// с пирами без криптографии.
func (p *Protocol) VerifyMessage(msg *api.SyncMessage) *MessageVerification {
	if msg == nil {
		return &MessageVerification{Error: "message is nil"}
	}
	if msg.Auth == nil {
		return &MessageVerification{Valid: true, Payload: msg.Payload}
	}
	provider, config := p.cryptoState()

	if len(msg.Auth.Signature) > 0 {
		// Подпись проверяется над байтами payload как есть:
		// для шифрованных сообщений это шифротекст
		ok, err := provider.Verify(msg.Payload, msg.Auth.Signature, msg.Auth.SenderDID)
		if err != nil {
			return &MessageVerification{Error: err.Error()}
		}
		if !ok {
			return &MessageVerification{Error: "Invalid signature"}
		}
	} else if config.RequireSignatures {
		return &MessageVerification{Error: "Signature required but not present"}
	}

	payload := msg.Payload
	if msg.Auth.Encrypted {
		decrypted, err := p.decryptPayload(provider, payload, msg.Auth.SenderDID)
		if err != nil {
			return &MessageVerification{Error: "Decryption failed: " + err.Error()}
		}
		payload = decrypted
	}

	return &MessageVerification{Valid: true, Payload: payload}
}

// encryptPayload шифрует payload для получателя согласно настроенному
// режиму: asymmetric - ECIES на ключ получателя, session - AES-GCM
// на производном сессионном ключе.
func (p *Protocol) encryptPayload(provider crypto.Provider, config *Config, raw []byte, receiverDID string) (*crypto.EncryptedPayload, error) {
	switch config.EncryptionMode {
	case models.EncryptionModeAsymmetric:
		envelope, err := provider.EncryptFor(raw, receiverDID)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}
		return envelope, nil

	case models.EncryptionModeSession:
		key, err := provider.DeriveSessionKey(receiverDID)
		if err != nil {
			return nil, fmt.Errorf("failed to derive session key: %w", err)
		}
		envelope, err := provider.EncryptSymmetric(raw, key)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}
		return envelope, nil

	default:
		return nil, fmt.Errorf("unsupported encryption mode: %s", config.EncryptionMode)
	}
}

// decryptPayload расшифровывает конверт, выбирая операцию по алгоритму.
func (p *Protocol) decryptPayload(provider crypto.Provider, raw []byte, senderDID string) ([]byte, error) {
	var envelope crypto.EncryptedPayload
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("malformed encrypted payload: %w", err)
	}

	switch envelope.Algorithm {
	case crypto.AlgorithmECIES:
		return provider.DecryptFrom(&envelope)

	case crypto.AlgorithmAESGCM:
		key, err := provider.DeriveSessionKey(senderDID)
		if err != nil {
			return nil, err
		}
		return provider.DecryptSymmetric(&envelope, key)

	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", envelope.Algorithm)
	}
}

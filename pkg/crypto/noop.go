package crypto

import (
	"context"
	"time"
)

// NoopProvider разрешающий провайдер по умолчанию: используется, когда
// host-приложение не передало настоящую криптографию. Проверки всегда
// успешны, операции, требующие ключей, завершаются ErrNotConfigured.
type NoopProvider struct{}

var _ Provider = (*NoopProvider)(nil)

// NewNoopProvider создает разрешающий no-op провайдер.
func NewNoopProvider() *NoopProvider { return &NoopProvider{} }

// IsInitialized всегда false: идентичности нет.
func (p *NoopProvider) IsInitialized() bool { return false }

// LocalDID всегда пустая строка.
func (p *NoopProvider) LocalDID() string { return "" }

// GenerateIdentity недоступна без настоящего провайдера.
func (p *NoopProvider) GenerateIdentity(_ context.Context) (*PublicIdentity, error) {
	return nil, ErrNotConfigured
}

// ExportPublicIdentity недоступна без настоящего провайдера.
func (p *NoopProvider) ExportPublicIdentity() (*PublicIdentity, error) {
	return nil, ErrNotConfigured
}

// RegisterPeerKeys принимает ключи молча: хранить их незачем.
func (p *NoopProvider) RegisterPeerKeys(_ string, _, _ []byte) error { return nil }

// Sign недоступна без настоящего провайдера.
func (p *NoopProvider) Sign(_ []byte) ([]byte, error) { return nil, ErrNotConfigured }

// Verify всегда успешна.
func (p *NoopProvider) Verify(_, _ []byte, _ string) (bool, error) { return true, nil }

// VerifyWithKey всегда успешна.
func (p *NoopProvider) VerifyWithKey(_, _, _ []byte) (bool, error) { return true, nil }

// SignEnvelope недоступна без настоящего провайдера.
func (p *NoopProvider) SignEnvelope(_ any) (*SignedEnvelope, error) {
	return nil, ErrNotConfigured
}

// VerifyEnvelope всегда успешна.
func (p *NoopProvider) VerifyEnvelope(_ *SignedEnvelope) (bool, error) { return true, nil }

// EncryptFor недоступна без настоящего провайдера.
func (p *NoopProvider) EncryptFor(_ []byte, _ string) (*EncryptedPayload, error) {
	return nil, ErrNotConfigured
}

// DecryptFrom недоступна без настоящего провайдера.
func (p *NoopProvider) DecryptFrom(_ *EncryptedPayload) ([]byte, error) {
	return nil, ErrNotConfigured
}

// DeriveSessionKey недоступна без настоящего провайдера.
func (p *NoopProvider) DeriveSessionKey(_ string) ([]byte, error) {
	return nil, ErrNotConfigured
}

// EncryptSymmetric недоступна без настоящего провайдера.
func (p *NoopProvider) EncryptSymmetric(_, _ []byte) (*EncryptedPayload, error) {
	return nil, ErrNotConfigured
}

// DecryptSymmetric недоступна без настоящего провайдера.
func (p *NoopProvider) DecryptSymmetric(_ *EncryptedPayload, _ []byte) ([]byte, error) {
	return nil, ErrNotConfigured
}

// IssueToken недоступна без настоящего провайдера.
func (p *NoopProvider) IssueToken(_ string, _ []string, _ time.Duration) (string, error) {
	return "", ErrNotConfigured
}

// VerifyToken всегда авторизует.
func (p *NoopProvider) VerifyToken(_ string, _ []string) *TokenVerification {
	return &TokenVerification{Authorized: true}
}

// DelegateToken недоступна без настоящего провайдера.
func (p *NoopProvider) DelegateToken(_, _ string, _ []string) (string, error) {
	return "", ErrNotConfigured
}

// HashContent недоступна без настоящего провайдера.
func (p *NoopProvider) HashContent(_ []byte) (string, error) { return "", ErrNotConfigured }

// RandomBytes недоступна без настоящего провайдера.
func (p *NoopProvider) RandomBytes(_ int) ([]byte, error) { return nil, ErrNotConfigured }

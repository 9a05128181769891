package software

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iudanet/synckit/pkg/crypto"
)

// DefaultTokenTTL - срок действия capability-токена по умолчанию
const DefaultTokenTTL = 24 * time.Hour

// AudienceAny - wildcard-адресат: токен предъявляем любому узлу
const AudienceAny = "*"

// capabilityClaims представляет JWT claims capability-токена.
// cap несет выданные capabilities, prf - родительский токен при делегации.
type capabilityClaims struct {
	Capabilities []string `json:"cap"`
	Proof        string   `json:"prf,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken выпускает capability-токен для указанного адресата.
// Токен подписан локальным ключом Ed25519 (EdDSA), issuer - локальный DID.
func (p *Provider) IssueToken(audienceDID string, capabilities []string, ttl time.Duration) (string, error) {
	p.mu.RLock()
	signingKey := p.signingKey
	localDID := p.did
	p.mu.RUnlock()

	if signingKey == nil {
		return "", crypto.ErrNotInitialized
	}
	if audienceDID == "" {
		return "", fmt.Errorf("audience DID cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := capabilityClaims{
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    localDID,
			Audience:  jwt.ClaimStrings{audienceDID},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tokenString, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// VerifyToken проверяет capability-токен против требуемого набора
// capabilities. Отказ не является error: результат несет причину текстом.
func (p *Provider) VerifyToken(tokenString string, required []string) *crypto.TokenVerification {
	claims, err := p.parseToken(tokenString)
	if err != nil {
		return &crypto.TokenVerification{Error: err.Error()}
	}

	result := &crypto.TokenVerification{
		IssuerDID:    claims.Issuer,
		Capabilities: claims.Capabilities,
	}
	if len(claims.Audience) > 0 {
		result.AudienceDID = claims.Audience[0]
	}

	granted := make(map[string]struct{}, len(claims.Capabilities))
	for _, c := range claims.Capabilities {
		granted[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := granted[c]; !ok {
			result.Error = fmt.Sprintf("missing capability: %s", c)
			return result
		}
	}

	result.Authorized = true
	return result
}

// DelegateToken выпускает дочерний токен, ограниченный capabilities
// родительского. Родительский токен попадает в prf как доказательство
// цепочки делегирования.
func (p *Provider) DelegateToken(parentToken, audienceDID string, capabilities []string) (string, error) {
	p.mu.RLock()
	signingKey := p.signingKey
	localDID := p.did
	p.mu.RUnlock()

	if signingKey == nil {
		return "", crypto.ErrNotInitialized
	}

	parent, err := p.parseToken(parentToken)
	if err != nil {
		return "", fmt.Errorf("invalid parent token: %w", err)
	}

	held := make(map[string]struct{}, len(parent.Capabilities))
	for _, c := range parent.Capabilities {
		held[c] = struct{}{}
	}
	for _, c := range capabilities {
		if _, ok := held[c]; !ok {
			return "", fmt.Errorf("capability not held by parent token: %s", c)
		}
	}

	now := time.Now()
	claims := capabilityClaims{
		Capabilities: capabilities,
		Proof:        parentToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   localDID,
			Audience: jwt.ClaimStrings{audienceDID},
			// Дочерний токен не живет дольше родительского
			ExpiresAt: parent.ExpiresAt,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	tokenString, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// parseToken парсит токен и проверяет подпись ключом issuer.
func (p *Provider) parseToken(tokenString string) (*capabilityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &capabilityClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		issuer, err := token.Claims.GetIssuer()
		if err != nil {
			return nil, fmt.Errorf("failed to read issuer: %w", err)
		}
		key, err := p.signingKeyFor(issuer)
		if err != nil {
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*capabilityClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

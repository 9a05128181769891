package software

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/synckit/pkg/crypto"
)

func TestProvider_IssueToken_Verify(t *testing.T) {
	p := createTestProvider(t)

	token, err := p.IssueToken(AudienceAny, []string{"sync", "replicate"}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	result := p.VerifyToken(token, []string{"sync"})
	require.NotNil(t, result)
	assert.True(t, result.Authorized)
	assert.Empty(t, result.Error)
	assert.Equal(t, p.LocalDID(), result.IssuerDID)
	assert.Equal(t, AudienceAny, result.AudienceDID)
	assert.ElementsMatch(t, []string{"sync", "replicate"}, result.Capabilities)

	// Все требуемые capabilities сразу
	result = p.VerifyToken(token, []string{"sync", "replicate"})
	assert.True(t, result.Authorized)

	// Пустой набор требований проходит всегда
	result = p.VerifyToken(token, nil)
	assert.True(t, result.Authorized)
}

func TestProvider_VerifyToken_MissingCapability(t *testing.T) {
	p := createTestProvider(t)

	token, err := p.IssueToken(AudienceAny, []string{"sync"}, time.Hour)
	require.NoError(t, err)

	result := p.VerifyToken(token, []string{"admin"})
	require.NotNil(t, result)
	assert.False(t, result.Authorized)
	assert.Contains(t, result.Error, "missing capability: admin")
	// Клеймы токена все равно доступны вызывающей стороне
	assert.Equal(t, p.LocalDID(), result.IssuerDID)
}

func TestProvider_VerifyToken_Malformed(t *testing.T) {
	p := createTestProvider(t)

	result := p.VerifyToken("not-a-jwt", []string{"sync"})
	require.NotNil(t, result)
	assert.False(t, result.Authorized)
	assert.Contains(t, result.Error, "failed to parse token")
}

func TestProvider_VerifyToken_Expired(t *testing.T) {
	p := createTestProvider(t)

	// Собираем токен с истекшим сроком напрямую
	past := time.Now().Add(-time.Hour)
	claims := capabilityClaims{
		Capabilities: []string{"sync"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.LocalDID(),
			Audience:  jwt.ClaimStrings{AudienceAny},
			ExpiresAt: jwt.NewNumericDate(past),
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Hour)),
			NotBefore: jwt.NewNumericDate(past.Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(p.signingKey)
	require.NoError(t, err)

	result := p.VerifyToken(expired, []string{"sync"})
	require.NotNil(t, result)
	assert.False(t, result.Authorized)
	assert.Contains(t, result.Error, "expired")
}

func TestProvider_VerifyToken_CrossNode(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)

	token, err := a.IssueToken(b.LocalDID(), []string{"sync"}, time.Hour)
	require.NoError(t, err)

	// Без ключей issuer проверяющая сторона не может проверить подпись
	result := b.VerifyToken(token, []string{"sync"})
	assert.False(t, result.Authorized)
	assert.Contains(t, result.Error, "failed to parse token")

	crossRegister(t, a, b)

	result = b.VerifyToken(token, []string{"sync"})
	assert.True(t, result.Authorized)
	assert.Equal(t, a.LocalDID(), result.IssuerDID)
	// Соответствие адресата предъявителю остается на вызывающей стороне
	assert.Equal(t, b.LocalDID(), result.AudienceDID)
}

func TestProvider_IssueToken_Errors(t *testing.T) {
	p := createTestProvider(t)

	_, err := p.IssueToken("", []string{"sync"}, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audience DID cannot be empty")

	_, err = New().IssueToken(AudienceAny, []string{"sync"}, time.Hour)
	assert.ErrorIs(t, err, crypto.ErrNotInitialized)
}

func TestProvider_DelegateToken(t *testing.T) {
	a := createTestProvider(t)
	b := createTestProvider(t)
	crossRegister(t, a, b)

	parent, err := a.IssueToken(AudienceAny, []string{"sync", "replicate"}, time.Hour)
	require.NoError(t, err)

	// Делегируем подмножество capabilities
	child, err := a.DelegateToken(parent, b.LocalDID(), []string{"sync"})
	require.NoError(t, err)
	require.NotEmpty(t, child)

	result := a.VerifyToken(child, []string{"sync"})
	assert.True(t, result.Authorized)
	assert.Equal(t, b.LocalDID(), result.AudienceDID)
	assert.Equal(t, []string{"sync"}, result.Capabilities)

	// Дочерний токен не несет capabilities родителя сверх делегированных
	result = a.VerifyToken(child, []string{"replicate"})
	assert.False(t, result.Authorized)
	assert.Contains(t, result.Error, "missing capability: replicate")
}

func TestProvider_DelegateToken_Errors(t *testing.T) {
	a := createTestProvider(t)

	parent, err := a.IssueToken(AudienceAny, []string{"sync"}, time.Hour)
	require.NoError(t, err)

	// Расширение привилегий при делегировании запрещено
	_, err = a.DelegateToken(parent, AudienceAny, []string{"sync", "admin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capability not held by parent token: admin")

	_, err = a.DelegateToken("garbage", AudienceAny, []string{"sync"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parent token")

	_, err = New().DelegateToken(parent, AudienceAny, []string{"sync"})
	assert.ErrorIs(t, err, crypto.ErrNotInitialized)
}

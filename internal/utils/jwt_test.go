package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "HS384", time.Minute)

	token, err := m.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, 60, m.ExpireSeconds())
}

func TestJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	m := NewJWTManager("secret", "HS256", time.Minute)

	other := NewJWTManager("other-secret", "HS256", time.Minute)
	token, err := other.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.Error(t, err)

	// 算法不同
	hs512 := NewJWTManager("secret", "HS512", time.Minute)
	token, err = hs512.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.Error(t, err)

	expired := NewJWTManager("secret", "HS256", -time.Minute)
	token, err = expired.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.Error(t, err)

	_, err = m.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestJWTUnknownAlgorithmFallsBack(t *testing.T) {
	m := NewJWTManager("secret", "none-such", time.Minute)
	token, err := m.GenerateToken("admin", RoleAdmin)
	require.NoError(t, err)

	_, err = NewJWTManager("secret", "HS256", time.Minute).ValidateToken(token)
	assert.NoError(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	assert.True(t, IsBcryptHash(hash))
	assert.False(t, IsBcryptHash("pw"))
	assert.NoError(t, CheckPassword("pw", hash))
	assert.Error(t, CheckPassword("nope", hash))
}

func TestGetPaginationParams(t *testing.T) {
	offset, limit := GetPaginationParams(3, 10)
	assert.Equal(t, 20, offset)
	assert.Equal(t, 10, limit)

	offset, limit = GetPaginationParams(0, 0)
	assert.Equal(t, 0, offset)
	assert.Equal(t, DefaultPerPage, limit)
}

func TestValidateBindingUsesBindingTags(t *testing.T) {
	type req struct {
		Workers *int `binding:"omitempty,min=1"`
	}
	zero := 0
	assert.Error(t, ValidateBinding(&req{Workers: &zero}))
	assert.NoError(t, ValidateBinding(&req{}))
}

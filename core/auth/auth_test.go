package auth

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/trafikkvakt/core"
)

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	conf := core.AuthConfig{AdminPasswordHash: hash}
	tests := []struct {
		name    string
		conf    core.AuthConfig
		pwd     string
		wantErr error
	}{
		{name: "disabled", conf: core.AuthConfig{}, pwd: "s3cret", wantErr: ErrAuthDisabled},
		{name: "wrong password", conf: conf, pwd: "nope", wantErr: ErrInvalidCredentials},
		{name: "empty password", conf: conf, pwd: "", wantErr: ErrInvalidCredentials},
		{name: "ok", conf: conf, pwd: "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, CheckPassword(tt.conf, tt.pwd))
		})
	}
}

func TestHashPassword_empty(t *testing.T) {
	_, err := HashPassword("")
	assert.True(t, core.IsValidationError(err))
}

func TestGenerateToken(t *testing.T) {
	now := time.Date(2025, time.October, 6, 7, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return now }
	defer func() { NowFunc = time.Now }()

	conf := &core.Config{AppName: "Trafikkvakt", Auth: core.AuthConfig{JWTExpirationDelta: time.Hour}}
	token, err := GenerateToken(NewAdminClaims(conf), "secret")
	require.NoError(t, err)

	claims := new(Claims)
	parser := jwt.Parser{SkipClaimsValidation: true}
	_, err = parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)

	assert.Equal(t, AdminSubject, claims.Subject)
	assert.Equal(t, "Trafikkvakt", claims.Issuer)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt)
}

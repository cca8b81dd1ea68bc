package auth

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/trafikkvakt/core"
)

// AdminSubject is the token subject of the single administrator.
const AdminSubject = "admin"

var (
	NowFunc = time.Now // mockable

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("admin login is disabled, set ADMIN_PASSWORD_HASH to enable it")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64 `json:"oriat,omitempty"`
	IsAdmin      bool  `json:"is_admin,omitempty"`
}

// HashPassword returns the bcrypt hash to put in ADMIN_PASSWORD_HASH.
func HashPassword(pwd string) (string, error) {
	if pwd == "" {
		return "", core.NewFieldError("password", "password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hashing password")
	}
	return string(hash), nil
}

// CheckPassword compares pwd with the configured admin hash.
func CheckPassword(conf core.AuthConfig, pwd string) error {
	if !conf.Enabled() {
		return ErrAuthDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(conf.AdminPasswordHash), []byte(pwd)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func NewAdminClaims(conf *core.Config) *Claims {
	now := NowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   AdminSubject,
			ExpiresAt: now.Add(conf.Auth.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Unix(),
		IsAdmin:      true,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

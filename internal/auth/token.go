package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/ambaria/internal/model"
)

// minSecretBytes はHS256の署名鍵として受け付ける最小長。
const minSecretBytes = 32

// TokenConfig はセッショントークンの設定。
type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// IssuedToken は発行済みのセッショントークンを表す。
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// sessionClaims はセッショントークンのクレーム。
// email と picture は表示用で、認可には使用しない。
type sessionClaims struct {
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名のセッショントークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(config TokenConfig) (*TokenIssuer, error) {
	if len(config.Secret) < minSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretBytes)
	}
	if config.TTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive")
	}
	return &TokenIssuer{
		secret: []byte(config.Secret),
		ttl:    config.TTL,
		issuer: config.Issuer,
		now:    time.Now,
	}, nil
}

// Issue はユーザーのセッショントークンを発行する。
func (t *TokenIssuer) Issue(user *model.User) (*IssuedToken, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user ID is required to issue a token")
	}

	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := sessionClaims{
		Email:   user.Email,
		Picture: user.ProfilePicture,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify はトークンを検証し、ユーザーIDを返す。
// 署名と発行者が正しく期限のみ切れている場合はCredentialExpired、
// それ以外の不正はすべてInvalidCredentialを返す。
func (t *TokenIssuer) Verify(token string) (string, error) {
	if token == "" {
		return "", model.NewInvalidCredentialError()
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		// 複数のクレーム検証エラーは結合されて返るため、発行者違いを先に除外する
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
			return "", model.NewCredentialExpiredError()
		}
		return "", model.NewInvalidCredentialError()
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", model.NewInvalidCredentialError()
	}
	return claims.Subject, nil
}

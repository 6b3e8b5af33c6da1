package filesapitest

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessClaims — claims токена доступа к файлам.
type accessClaims struct {
	FileIDs []string `json:"file_ids"`
	jwt.RegisteredClaims
}

// allows сообщает, разрешает ли токен доступ к fileID.
func (c *accessClaims) allows(fileID string) bool {
	return slices.Contains(c.FileIDs, fileID)
}

// tokenIssuer выпускает и проверяет HS256-токены доступа.
type tokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func newTokenIssuer() *tokenIssuer {
	return &tokenIssuer{
		secret: []byte(uuid.NewString()),
		now:    time.Now,
	}
}

// issue выпускает токен на fileIDs со сроком действия ttl.
func (i *tokenIssuer) issue(fileIDs []string, userID *string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := accessClaims{
		FileIDs: slices.Clone(fileIDs),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if userID != nil {
		claims.Subject = *userID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// verify проверяет подпись и срок действия токена.
func (i *tokenIssuer) verify(raw string) (*accessClaims, error) {
	if raw == "" {
		return nil, errors.New("токен не передан")
	}
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("невалидный токен: %w", err)
	}
	return claims, nil
}

package room

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sharetube/officedj/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

const guestTokenTTL = 30 * 24 * time.Hour

type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func (s *service) GenerateJWT(user domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(guestTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(s.secret))
}

func (s *service) ParseJWT(tokenString string) (domain.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.User{}, ErrInvalidToken
	}

	return domain.User{ID: claims.Subject, Name: claims.Name}, nil
}

// IssueGuestToken mints an identity for clients without an external provider.
func (s *service) IssueGuestToken(name string) (string, domain.User, error) {
	user := domain.User{ID: uuid.NewString(), Name: name}

	token, err := s.GenerateJWT(user)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return token, user, nil
}

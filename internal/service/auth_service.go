package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/unnita1235/ConnectNow-sub000/internal/domain"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
)

var (
	ErrInvalidToken    = fmt.Errorf("invalid or expired token: %w", domain.ErrUnauthenticated)
	ErrAccountDisabled = fmt.Errorf("account is inactive or banned: %w", domain.ErrUnauthenticated)
	ErrUserNotFound    = fmt.Errorf("user %w", domain.ErrNotFound)
)

// AuthService validates bearer credentials into connection identities.
// Tokens are issued elsewhere; IssueToken exists for dev seeding and tests.
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Validate parses the token and loads the user it names. Inactive and
// banned accounts are rejected even with a valid signature.
func (s *AuthService) Validate(ctx context.Context, credential string) (*domain.Identity, error) {
	userID, err := s.parseToken(credential)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	if !user.CanConnect() {
		return nil, ErrAccountDisabled
	}

	id := user.Identity()
	return &id, nil
}

func (s *AuthService) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) parseToken(tokenStr string) (uuid.UUID, error) {
	if tokenStr == "" {
		return uuid.Nil, jwt.ErrTokenMalformed
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}

	return uuid.Parse(sub)
}

package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/taskdeck/apiserver/internal/store"
	"github.com/taskdeck/apiserver/types"
)

// ErrInvalidToken is returned for any token that cannot be accepted:
// bad signature, expired, revoked, or owner gone. Callers must not be
// able to tell these cases apart.
var ErrInvalidToken = errors.New("invalid token")

// TokenRepository defines persistence operations for the per-user token set.
type TokenRepository interface {
	Add(ctx context.Context, userID int, token string) error
	Exists(ctx context.Context, userID int, token string) (bool, error)
	Remove(ctx context.Context, userID int, token string) error
	RemoveAll(ctx context.Context, userID int) error
}

// UserGetter is the piece of the user repository token validation needs.
type UserGetter interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// AuthService is the token authority: it signs bearer tokens, records
// them in the owner's token set, and validates presented tokens against
// both the signature and the stored set. A token removed from the set
// is dead even though its signature still verifies.
type AuthService struct {
	users  UserGetter
	tokens TokenRepository
	secret []byte
	ttl    time.Duration
}

func NewAuthService(users UserGetter, tokens TokenRepository, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a new token for the user and appends it to their token set.
func (s *AuthService) Issue(ctx context.Context, userID int) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	if err := s.tokens.Add(ctx, userID, token); err != nil {
		return "", err
	}
	return token, nil
}

// Validate verifies the token signature, checks the token is still in
// the owner's stored set, and resolves the owning user.
func (s *AuthService) Validate(ctx context.Context, tokenString string) (types.User, error) {
	userID, err := s.parseSubject(tokenString)
	if err != nil {
		return types.User{}, ErrInvalidToken
	}

	active, err := s.tokens.Exists(ctx, userID, tokenString)
	if err != nil {
		return types.User{}, err
	}
	if !active {
		return types.User{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, err
	}
	return user, nil
}

// Revoke removes a single token from the user's set, ending that
// session and leaving the user's other sessions untouched.
func (s *AuthService) Revoke(ctx context.Context, userID int, token string) error {
	return s.tokens.Remove(ctx, userID, token)
}

// RevokeAll empties the user's token set, ending every session.
func (s *AuthService) RevokeAll(ctx context.Context, userID int) error {
	return s.tokens.RemoveAll(ctx, userID)
}

func (s *AuthService) parseSubject(tokenString string) (int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}
	subject := strings.TrimSpace(claims.Subject)
	userID, err := strconv.Atoi(subject)
	if err != nil || userID < 1 {
		return 0, errors.New("invalid subject")
	}
	return userID, nil
}

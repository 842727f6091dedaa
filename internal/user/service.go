package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"go-chat-broker/internal/store"
)

var (
	ErrPasswordMismatch = errors.New("password is wrong")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidUsername  = errors.New("invalid username")
)

const tokenIssuer = "go-chat-broker"

// MaxUsernameLength matches the users table column.
const MaxUsernameLength = 50

// ValidateUsername rejects names that every frame addressed to them could
// not carry: a leading or trailing '#' collides with the field delimiter,
// ',' splits group participant lists and control characters break the
// line-based file store.
func ValidateUsername(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: not utf-8", ErrInvalidUsername)
	case utf8.RuneCountInString(name) > MaxUsernameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUsername, MaxUsernameLength)
	case strings.HasPrefix(name, "#") || strings.HasSuffix(name, "#"):
		return fmt.Errorf("%w: %q starts or ends with #", ErrInvalidUsername, name)
	case strings.Contains(name, ","):
		return fmt.Errorf("%w: %q contains a comma", ErrInvalidUsername, name)
	case strings.ContainsFunc(name, unicode.IsControl):
		return fmt.Errorf("%w: %q contains control characters", ErrInvalidUsername, name)
	}
	return nil
}

// Service owns credential checks for chat logins and the admin API tokens.
type Service struct {
	store     store.Store
	jwtSecret []byte
	cost      int
	tokenTTL  time.Duration
}

type MyJWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(s store.Store, secret string, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		store:     s,
		jwtSecret: []byte(secret),
		cost:      cost,
		tokenTTL:  24 * time.Hour,
	}
}

// Verify reports whether username is known and, if so, whether password
// matches. A known user with a different password fails with
// ErrPasswordMismatch.
func (s *Service) Verify(ctx context.Context, username, password string) (bool, error) {
	u, err := s.store.GetUser(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return true, ErrPasswordMismatch
		}
		return true, err
	}
	return true, nil
}

// Login verifies the credential, registering the user on first sight.
// It returns true when the account was created by this call.
func (s *Service) Login(ctx context.Context, username, password string) (bool, error) {
	if err := ValidateUsername(username); err != nil {
		return false, err
	}
	found, err := s.Verify(ctx, username, password)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SaveUser(ctx, username, string(hashedPwd)); err != nil {
		return false, fmt.Errorf("save user: %w", err)
	}
	return true, nil
}

// IssueToken checks an existing user's password and returns a signed admin
// token. Unlike Login it never creates accounts.
func (s *Service) IssueToken(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	found, err := s.Verify(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrUserNotFound
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   req.Username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})

	ss, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		Username:    req.Username,
	}, nil
}

// ValidateToken checks the signature and expiry of tokenString and that
// its account still exists.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))

	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if _, err := s.store.GetUser(ctx, claims.Username); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", fmt.Errorf("%w: unknown user %q", ErrInvalidToken, claims.Username)
		}
		return "", fmt.Errorf("look up token user: %w", err)
	}
	return claims.Username, nil
}

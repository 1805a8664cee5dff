package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Errors returned by Service. Handlers map them to 401 or 409.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrClientExists       = errors.New("client already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrClientNotFound     = errors.New("client not found")
)

// Client is an API consumer that owns datasets and models
type Client struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Claims are carried in every issued token. ClientID doubles as the subject.
type Claims struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// ClientRepository stores clients. Lookups of unknown clients return
// ErrClientNotFound.
type ClientRepository interface {
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id string) (*Client, error)
	GetByName(ctx context.Context, name string) (*Client, error)
}

// Service registers clients and trades their secrets for bearer tokens.
type Service interface {
	Register(ctx context.Context, name, secret string) (*Client, error)
	IssueToken(ctx context.Context, name, secret string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Config controls token signing. Tokens are HS256 with SecretKey.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
	Issuer        string
}

// DefaultConfig is only fit for local runs; the server warns when the
// signing key is left unchanged.
func DefaultConfig() Config {
	return Config{
		SecretKey:     "change-me-in-production",
		TokenDuration: 24 * time.Hour,
		Issuer:        "isoforest",
	}
}

type JWTService struct {
	config Config
	repo   ClientRepository
}

// NewJWTService returns a Service backed by repo. A non-positive token
// duration falls back to a day.
func NewJWTService(config Config, repo ClientRepository) *JWTService {
	if config.TokenDuration <= 0 {
		config.TokenDuration = DefaultConfig().TokenDuration
	}
	return &JWTService{
		config: config,
		repo:   repo,
	}
}

// Register stores a client under a unique name. Only the bcrypt hash of the
// secret is kept.
func (s *JWTService) Register(ctx context.Context, name, secret string) (*Client, error) {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil && !errors.Is(err, ErrClientNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrClientExists
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	now := time.Now()
	client := &Client{
		Name:       name,
		SecretHash: hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, client); err != nil {
		return nil, err
	}

	return client, nil
}

// IssueToken checks the secret and signs a token for the client. Unknown
// names and wrong secrets fail alike.
func (s *JWTService) IssueToken(ctx context.Context, name, secret string) (string, error) {
	client, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if !CheckSecret(secret, client.SecretHash) {
		return "", ErrInvalidCredentials
	}

	return s.generateToken(client)
}

// ValidateToken accepts only unexpired HS256 tokens from our issuer.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *JWTService) generateToken(client *Client) (string, error) {
	now := time.Now()
	claims := &Claims{
		ClientID: client.ID,
		Name:     client.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   client.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.SecretKey))
}

// HashSecret returns the bcrypt hash of secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

func CheckSecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

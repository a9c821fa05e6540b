package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-feed/internal/domain"
)

// JWTService emite y valida tokens de acceso. El login vive fuera de este servicio:
// aca solo se atribuye la identidad del viewer.
type JWTService struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
}

type Claims struct {
	ViewerID     string `json:"uid"`
	Identity     string `json:"identity"`
	AuthProvider string `json:"auth_provider,omitempty"`
	TokenType    string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

const (
	AuthProviderDirect = "direct"
	AuthProviderGitHub = "github"
)

func NewJWTService(secret string, accessTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &JWTService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    "chat-feed",
	}
}

// IssueAccessToken firma un token de acceso para el viewer.
func (s *JWTService) IssueAccessToken(viewer domain.Viewer) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	if strings.TrimSpace(viewer.ID) == "" || strings.TrimSpace(viewer.Identity) == "" {
		return "", ErrJWTInvalid
	}
	provider := AuthProviderDirect
	if viewer.Source == domain.SourceFederated {
		provider = AuthProviderGitHub
	}
	now := time.Now().UTC()
	claims := Claims{
		ViewerID:     viewer.ID,
		Identity:     viewer.Identity,
		AuthProvider: provider,
		TokenType:    "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   viewer.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" {
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// Viewer arma la identidad atribuible a partir de los claims.
func (c Claims) Viewer() domain.Viewer {
	source := domain.SourceDirect
	if strings.EqualFold(c.AuthProvider, AuthProviderGitHub) {
		source = domain.SourceFederated
	}
	return domain.Viewer{
		ID:       c.ViewerID,
		Identity: c.Identity,
		Source:   source,
	}
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.ViewerID) == "" {
		return false
	}
	if strings.TrimSpace(claims.Identity) == "" {
		return false
	}
	if claims.Subject != claims.ViewerID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}

package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Taiga-ESSI/taiga-auth/internal/domain"
)

// JWTService emite y valida los tokens de sesión. El par auth/refresh
// tiene exactamente la misma forma venga de login clásico o federado.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
}

// SessionPayload es el contrato de respuesta de cualquier login.
type SessionPayload struct {
	User      domain.User `json:"user"`
	AuthToken string      `json:"auth_token"`
	Refresh   string      `json:"refresh"`
}

type Claims struct {
	UserID        string `json:"uid"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	AuthProvider  string `json:"auth_provider,omitempty"`
	VerifiedEmail bool   `json:"verified_email"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "taiga-auth",
		store:      NewMemoryRefreshTokenStore(),
	}
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *JWTService {
	svc := NewJWTService(secret, accessTTL, refreshTTL)
	if store != nil {
		svc.store = store
	}
	return svc
}

// IssueSession genera el payload de sesión para un usuario autenticado.
func (s *JWTService) IssueSession(user domain.User) (SessionPayload, error) {
	if len(s.secret) == 0 {
		return SessionPayload{}, ErrJWTInvalid
	}
	now := time.Now().UTC()
	access, err := s.signToken(user, now, s.accessTTL, "access", "")
	if err != nil {
		return SessionPayload{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.signToken(user, now, s.refreshTTL, "refresh", jti)
	if err != nil {
		return SessionPayload{}, err
	}
	if err := s.store.Store(jti, user.ID, s.refreshTTL); err != nil {
		return SessionPayload{}, err
	}
	return SessionPayload{
		User:      user,
		AuthToken: access,
		Refresh:   refresh,
	}, nil
}

// RefreshSession rota el refresh token: revoca el jti usado y emite un
// par nuevo para el mismo usuario.
func (s *JWTService) RefreshSession(refreshToken string) (SessionPayload, error) {
	if len(s.secret) == 0 || strings.TrimSpace(refreshToken) == "" {
		return SessionPayload{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return SessionPayload{}, err
	}
	if claims.TokenType != "refresh" || !s.isValidClaims(claims) || claims.ID == "" {
		return SessionPayload{}, ErrJWTInvalid
	}
	ok, err := s.store.Exists(claims.ID)
	if err != nil || !ok {
		return SessionPayload{}, ErrJWTInvalid
	}
	if err := s.store.Revoke(claims.ID); err != nil {
		return SessionPayload{}, ErrJWTInvalid
	}

	user := domain.User{
		ID:            claims.UserID,
		Username:      claims.Username,
		Email:         claims.Email,
		AuthProvider:  claims.AuthProvider,
		VerifiedEmail: claims.VerifiedEmail,
		IsActive:      true,
	}
	return s.IssueSession(user)
}

// RevokeRefresh invalida el refresh token entregado (logout).
func (s *JWTService) RevokeRefresh(refreshToken string) error {
	if len(s.secret) == 0 || strings.TrimSpace(refreshToken) == "" {
		return ErrJWTInvalid
	}
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return err
	}
	if claims.TokenType != "refresh" || !s.isValidClaims(claims) || claims.ID == "" {
		return ErrJWTInvalid
	}
	return s.store.Revoke(claims.ID)
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(accessToken) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != "access" || !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) signToken(user domain.User, now time.Time, ttl time.Duration, tokenType, jti string) (string, error) {
	claims := Claims{
		UserID:        user.ID,
		Username:      user.Username,
		Email:         user.Email,
		AuthProvider:  user.AuthProvider,
		VerifiedEmail: user.VerifiedEmail,
		TokenType:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
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
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Taiga-ESSI/taiga-auth/internal/domain"
	"github.com/Taiga-ESSI/taiga-auth/internal/repository"
)

// Tipos de login aceptados. El conjunto es cerrado: la configuración
// decide cuál de los dos es alcanzable, nunca los dos caminos de
// contraseña y federado a la vez cuando google está activo.
const (
	LoginTypeNormal = "normal"
	LoginTypeGoogle = "google"
)

// LoginRequest es la request tipada del dispatcher.
type LoginRequest struct {
	Type string `json:"type"`

	// Camino clásico.
	Username string `json:"username"`
	Password string `json:"password"`

	// Camino federado.
	Credential      string `json:"credential"`
	ClientID        string `json:"client_id"`
	InvitationToken string `json:"invitation_token"`
}

// AuthService selecciona el proveedor de autenticación y devuelve un
// SessionPayload normalizado, idéntico para ambos caminos.
type AuthService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	verifier    TokenVerifier
	provisioner *ProvisioningService
	invitations InvitationBridge
	jwt         *JWTService

	googleEnabled  bool
	googleConfigOK bool
}

// AuthConfig fija qué proveedor queda activo. Con google habilitado,
// el login con contraseña y el registro público quedan retirados del
// conjunto de proveedores, no solo ocultos.
type AuthConfig struct {
	GoogleEnabled  bool
	GoogleConfigOK bool
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	verifier TokenVerifier,
	provisioner *ProvisioningService,
	invitations InvitationBridge,
	jwtSvc *JWTService,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		logger:         logger,
		users:          users,
		verifier:       verifier,
		provisioner:    provisioner,
		invitations:    invitations,
		jwt:            jwtSvc,
		googleEnabled:  cfg.GoogleEnabled,
		googleConfigOK: cfg.GoogleConfigOK,
	}
}

// Login despacha por el campo type. Cualquier fallo de la taxonomía se
// devuelve como *LoginError; el handler HTTP lo colapsa en un 400 con
// mensaje seguro.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (SessionPayload, error) {
	corrID := uuid.NewString()

	payload, err := s.dispatch(ctx, req)
	if err != nil {
		s.logLoginFailure(req.Type, corrID, err)
		return SessionPayload{}, err
	}

	s.logger.Info("login succeeded",
		zap.String("login_type", req.Type),
		zap.String("correlation_id", corrID),
		zap.String("user_id", payload.User.ID),
	)

	if req.InvitationToken != "" {
		s.applyInvitation(ctx, corrID, req.InvitationToken, payload.User)
	}
	return payload, nil
}

func (s *AuthService) dispatch(ctx context.Context, req LoginRequest) (SessionPayload, error) {
	switch req.Type {
	case LoginTypeGoogle:
		return s.loginGoogle(ctx, req)
	case LoginTypeNormal, "":
		if s.googleEnabled {
			return SessionPayload{}, NewLoginError(KindLoginTypeDisabled, nil)
		}
		return s.loginNormal(ctx, req)
	default:
		return SessionPayload{}, NewLoginError(KindLoginTypeDisabled, nil)
	}
}

func (s *AuthService) loginGoogle(ctx context.Context, req LoginRequest) (SessionPayload, error) {
	if !s.googleEnabled {
		return SessionPayload{}, NewLoginError(KindLoginTypeDisabled, nil)
	}
	// Falla cerrado: configuración incompleta nunca degrada a otro
	// proveedor ni a "permitir todo".
	if !s.googleConfigOK {
		return SessionPayload{}, NewLoginError(KindConfiguration, errors.New("google auth requires client ids and allowed domains"))
	}

	claims, err := s.verifier.Verify(ctx, req.Credential, req.ClientID)
	if err != nil {
		return SessionPayload{}, err
	}

	user, err := s.provisioner.Provision(ctx, claims)
	if err != nil {
		return SessionPayload{}, err
	}

	return s.jwt.IssueSession(user)
}

func (s *AuthService) loginNormal(ctx context.Context, req LoginRequest) (SessionPayload, error) {
	login := strings.TrimSpace(req.Username)
	password := strings.TrimSpace(req.Password)
	if login == "" || password == "" {
		return SessionPayload{}, NewLoginError(KindInvalidCredentials, nil)
	}

	user, err := s.users.GetByUsername(ctx, login)
	if errors.Is(err, pgx.ErrNoRows) && strings.Contains(login, "@") {
		user, err = s.users.GetByEmail(ctx, login)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionPayload{}, NewLoginError(KindInvalidCredentials, nil)
		}
		return SessionPayload{}, err
	}

	if !user.HasUsableCredential() {
		return SessionPayload{}, NewLoginError(KindInvalidCredentials, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return SessionPayload{}, NewLoginError(KindInvalidCredentials, nil)
	}
	if !user.IsActive {
		return SessionPayload{}, NewLoginError(KindAccountDisabled, nil)
	}

	return s.jwt.IssueSession(user)
}

// RegisterInput son los datos del alta clásica de cuenta.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

// Register da de alta una cuenta con contraseña. Con google activo el
// registro público está retirado junto con el login clásico.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (SessionPayload, error) {
	if s.googleEnabled {
		return SessionPayload{}, NewLoginError(KindLoginTypeDisabled, nil)
	}

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	password := strings.TrimSpace(input.Password)
	if username == "" || email == "" || password == "" {
		return SessionPayload{}, NewLoginError(KindInvalidCredentials, nil)
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return SessionPayload{}, err
	}

	user := domain.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(input.FullName),
		AuthProvider:  domain.CreatedViaNormal,
		PasswordHash:  string(hashBytes),
		IsActive:      true,
		VerifiedEmail: false,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return SessionPayload{}, NewLoginError(KindInvalidCredentials, errors.New("username or email already taken"))
		}
		return SessionPayload{}, err
	}

	return s.jwt.IssueSession(user)
}

// applyInvitation reenvía el invitation token al bridge. Una invitación
// ya consumida o inexistente no tumba el login: queda como warning.
func (s *AuthService) applyInvitation(ctx context.Context, corrID, token string, user domain.User) {
	if s.invitations == nil {
		return
	}
	outcome, err := s.invitations.Apply(ctx, token, user)
	if err != nil {
		s.logger.Warn("invitation apply failed",
			zap.String("correlation_id", corrID),
			zap.Error(err),
		)
		return
	}
	if outcome != InvitationApplied {
		s.logger.Warn("invitation skipped",
			zap.String("correlation_id", corrID),
			zap.String("outcome", string(outcome)),
		)
	}
}

// logLoginFailure registra kind y correlación, jamás credenciales ni
// contenido de tokens. Solo configuration_error escala a nivel Error:
// es un problema de despliegue, no comportamiento de usuario.
func (s *AuthService) logLoginFailure(loginType, corrID string, err error) {
	le, ok := AsLoginError(err)
	if !ok {
		s.logger.Error("login failed",
			zap.String("login_type", loginType),
			zap.String("correlation_id", corrID),
			zap.Error(err),
		)
		return
	}
	fields := []zap.Field{
		zap.String("login_type", loginType),
		zap.String("correlation_id", corrID),
		zap.String("kind", string(le.Kind)),
	}
	if le.Kind == KindConfiguration {
		s.logger.Error("login rejected by configuration", fields...)
		return
	}
	s.logger.Warn("login rejected", fields...)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Taiga-ESSI/taiga-auth/internal/domain"
	"github.com/Taiga-ESSI/taiga-auth/internal/repository"
)

// ProvisioningService reconcilia claims verificados contra el store de
// usuarios: empareja por email o da de alta la cuenta si la política y
// la configuración lo permiten.
type ProvisioningService struct {
	logger     *zap.Logger
	users      repository.UserRepository
	policy     DomainPolicy
	autoCreate bool
}

func NewProvisioningService(logger *zap.Logger, users repository.UserRepository, policy DomainPolicy, autoCreate bool) *ProvisioningService {
	return &ProvisioningService{
		logger:     logger,
		users:      users,
		policy:     policy,
		autoCreate: autoCreate,
	}
}

// Provision devuelve el usuario local para unos claims ya verificados.
// Nunca modifica campos de credencial de un usuario existente ni
// degrada su auth_provider; solo los observa.
func (s *ProvisioningService) Provision(ctx context.Context, claims GoogleClaims) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return domain.User{}, NewLoginError(KindMalformedToken, errors.New("claims carry no email"))
	}

	if !claims.EmailVerified {
		return domain.User{}, NewLoginError(KindEmailNotVerified, nil)
	}

	if !s.policy.IsAllowed(email, claims.HostedDomain) {
		return domain.User{}, NewLoginError(KindDomainNotAllowed, nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		if !user.IsActive {
			return domain.User{}, NewLoginError(KindAccountDisabled, nil)
		}
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	if !s.autoCreate {
		return domain.User{}, NewLoginError(KindNoSuchAccount, nil)
	}

	return s.createUser(ctx, email, claims)
}

func (s *ProvisioningService) createUser(ctx context.Context, email string, claims GoogleClaims) (domain.User, error) {
	username, err := s.uniqueUsername(ctx, localPart(email))
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		FullName:      claims.FullName(),
		AuthProvider:  domain.CreatedViaGoogle,
		PasswordHash:  "",
		IsActive:      true,
		VerifiedEmail: true,
		CreatedAt:     time.Now().UTC(),
	}

	err = s.users.Create(ctx, user)
	if err == nil {
		s.logger.Info("user auto-created from google login",
			zap.String("user_id", user.ID),
			zap.String("username", user.Username),
		)
		return user, nil
	}
	if !errors.Is(err, repository.ErrDuplicateUser) {
		return domain.User{}, err
	}

	// Violación de unicidad: otra request acaba de crear esta cuenta.
	// Releer y devolver la fila ganadora en vez de fallar.
	existing, lookupErr := s.users.GetByEmail(ctx, email)
	if lookupErr == nil {
		if !existing.IsActive {
			return domain.User{}, NewLoginError(KindAccountDisabled, nil)
		}
		return existing, nil
	}
	if !errors.Is(lookupErr, pgx.ErrNoRows) {
		return domain.User{}, lookupErr
	}

	// El conflicto fue de username, no de email. Un solo reintento con
	// sufijo aleatorio; si vuelve a chocar se devuelve el error.
	user.Username = username + "-" + uuid.NewString()[:8]
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

var usernameSanitizer = regexp.MustCompile(`[^a-z0-9._-]+`)
var usernameDashRuns = regexp.MustCompile(`-+`)

// uniqueUsername deriva un username del local part del email y sondea
// el store con sufijos numéricos hasta encontrar uno libre.
func (s *ProvisioningService) uniqueUsername(ctx context.Context, base string) (string, error) {
	base = usernameSanitizer.ReplaceAllString(strings.ToLower(base), "-")
	base = usernameDashRuns.ReplaceAllString(base, "-")
	base = strings.Trim(base, ".-")
	if base == "" {
		base = "user"
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		_, err := s.users.GetByUsername(ctx, candidate)
		if errors.Is(err, pgx.ErrNoRows) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

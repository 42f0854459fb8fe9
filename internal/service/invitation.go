package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Taiga-ESSI/taiga-auth/internal/domain"
	"github.com/Taiga-ESSI/taiga-auth/internal/repository"
)

// InvitationOutcome es el resultado de aplicar un invitation token.
type InvitationOutcome string

const (
	InvitationApplied         InvitationOutcome = "applied"
	InvitationAlreadyConsumed InvitationOutcome = "already_consumed"
	InvitationNotFound        InvitationOutcome = "not_found"
)

// InvitationBridge aplica una invitación pendiente al usuario ya
// autenticado. AlreadyConsumed y NotFound no son fatales para el login;
// solo Applied tiene efectos.
type InvitationBridge interface {
	Apply(ctx context.Context, token string, user domain.User) (InvitationOutcome, error)
}

// ProjectInvitationBridge implementa InvitationBridge sobre el
// repositorio de invitaciones de proyecto.
type ProjectInvitationBridge struct {
	logger      *zap.Logger
	invitations repository.InvitationRepository
}

func NewProjectInvitationBridge(logger *zap.Logger, invitations repository.InvitationRepository) *ProjectInvitationBridge {
	return &ProjectInvitationBridge{logger: logger, invitations: invitations}
}

func (b *ProjectInvitationBridge) Apply(ctx context.Context, token string, user domain.User) (InvitationOutcome, error) {
	consumed, err := b.invitations.MarkUsed(ctx, token, user.ID, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if consumed {
		b.logger.Info("project invitation applied", zap.String("user_id", user.ID))
		return InvitationApplied, nil
	}

	// El UPDATE no tocó filas: o la invitación ya se consumió o el
	// token no existe. Distinguirlo solo afecta al log.
	if _, err := b.invitations.GetByToken(ctx, token); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InvitationNotFound, nil
		}
		return "", err
	}
	return InvitationAlreadyConsumed, nil
}

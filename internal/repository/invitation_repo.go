package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Taiga-ESSI/taiga-auth/internal/domain"
)

// InvitationRepository define el contrato de persistencia para
// invitaciones de proyecto pendientes.
type InvitationRepository interface {
	GetByToken(ctx context.Context, token string) (domain.ProjectInvitation, error)
	// MarkUsed consume la invitación si sigue pendiente. Devuelve false si
	// ya estaba consumida o no existe; el UPDATE condicional garantiza
	// como mucho un consumo aunque lleguen requests concurrentes.
	MarkUsed(ctx context.Context, token, userID string, usedAt time.Time) (bool, error)
}

// PgInvitationRepository implementa InvitationRepository usando pgxpool.
type PgInvitationRepository struct {
	pool *pgxpool.Pool
}

func NewPgInvitationRepository(pool *pgxpool.Pool) *PgInvitationRepository {
	return &PgInvitationRepository{pool: pool}
}

func (r *PgInvitationRepository) GetByToken(ctx context.Context, token string) (domain.ProjectInvitation, error) {
	const query = `
		SELECT token, email, project_id, COALESCE(used_by, ''), used_at, created_at
		FROM project_invitations
		WHERE token = $1
	`
	var inv domain.ProjectInvitation
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&inv.Token,
		&inv.Email,
		&inv.ProjectID,
		&inv.UsedBy,
		&inv.UsedAt,
		&inv.CreatedAt,
	)
	if err != nil {
		return domain.ProjectInvitation{}, err
	}
	return inv, nil
}

func (r *PgInvitationRepository) MarkUsed(ctx context.Context, token, userID string, usedAt time.Time) (bool, error) {
	const query = `
		UPDATE project_invitations
		SET used_by = $2, used_at = $3
		WHERE token = $1 AND used_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, token, userID, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

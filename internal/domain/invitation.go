package domain

import "time"

// ProjectInvitation referencia una invitación pendiente a un proyecto.
// Se consume como mucho una vez; UsedAt marca el consumo.
type ProjectInvitation struct {
	Token     string     `json:"token"`
	Email     string     `json:"email"`
	ProjectID string     `json:"project_id"`
	UsedBy    string     `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

package domain

import "time"

// Proveedores de alta de cuenta.
const (
	CreatedViaNormal = "normal"
	CreatedViaGoogle = "google"
)

type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	AuthProvider  string    `json:"auth_provider,omitempty"`
	PasswordHash  string    `json:"-"`
	IsActive      bool      `json:"is_active"`
	VerifiedEmail bool      `json:"verified_email"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasUsableCredential indica si la cuenta puede autenticarse con contraseña.
// Las cuentas creadas por login federado no tienen credencial local.
func (u User) HasUsableCredential() bool {
	return u.PasswordHash != ""
}

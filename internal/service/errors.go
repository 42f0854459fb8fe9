package service

import "errors"

// LoginErrorKind clasifica fallos de login para logs y métricas.
// Hacia afuera todos se presentan igual: 400 con un mensaje traducido.
type LoginErrorKind string

const (
	KindMalformedToken     LoginErrorKind = "malformed_token"
	KindInvalidSignature   LoginErrorKind = "invalid_signature"
	KindAudienceMismatch   LoginErrorKind = "audience_mismatch"
	KindExpired            LoginErrorKind = "expired"
	KindDomainNotAllowed   LoginErrorKind = "domain_not_allowed"
	KindEmailNotVerified   LoginErrorKind = "email_not_verified"
	KindAccountDisabled    LoginErrorKind = "account_disabled"
	KindNoSuchAccount      LoginErrorKind = "no_such_account"
	KindConfiguration      LoginErrorKind = "configuration_error"
	KindInvalidCredentials LoginErrorKind = "invalid_credentials"
	KindLoginTypeDisabled  LoginErrorKind = "login_type_disabled"
)

// Mensajes aptos para usuario final, elegidos por kind. Nunca se devuelve
// el texto del error interno ni contenido del token.
var loginMessages = map[LoginErrorKind]string{
	KindMalformedToken:     "Invalid Google credential.",
	KindInvalidSignature:   "Invalid Google credential.",
	KindAudienceMismatch:   "Invalid Google credential.",
	KindExpired:            "Invalid Google credential.",
	KindDomainNotAllowed:   "Your Google account is not allowed to sign in.",
	KindEmailNotVerified:   "Google has not verified this email address.",
	KindAccountDisabled:    "This user account is disabled.",
	KindNoSuchAccount:      "This Google account is not associated with a registered user.",
	KindConfiguration:      "Sign in is not available right now.",
	KindInvalidCredentials: "Invalid username, email or password.",
	KindLoginTypeDisabled:  "This sign in method is not available.",
}

// LoginError es el único tipo de error que cruza la frontera del
// dispatcher hacia HTTP. Kind vive en los logs; Message() es lo único
// que ve el cliente.
type LoginError struct {
	Kind  LoginErrorKind
	cause error
}

func NewLoginError(kind LoginErrorKind, cause error) *LoginError {
	return &LoginError{Kind: kind, cause: cause}
}

func (e *LoginError) Error() string {
	if e.cause != nil {
		return "login failed: " + string(e.Kind) + ": " + e.cause.Error()
	}
	return "login failed: " + string(e.Kind)
}

func (e *LoginError) Unwrap() error {
	return e.cause
}

// Message devuelve el texto seguro para el cliente.
func (e *LoginError) Message() string {
	if msg, ok := loginMessages[e.Kind]; ok {
		return msg
	}
	return "Sign in failed."
}

// AsLoginError extrae un *LoginError de la cadena de errores.
func AsLoginError(err error) (*LoginError, bool) {
	var le *LoginError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

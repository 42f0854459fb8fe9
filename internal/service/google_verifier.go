package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	googleIssuer     = "https://accounts.google.com"
	googleIssuerBare = "accounts.google.com"
	googleJWKSURL    = "https://www.googleapis.com/oauth2/v3/certs"

	keyFetchTimeout = 5 * time.Second
)

// GoogleClaims son los hechos extraídos de un credential ya verificado.
// Inmutable una vez construido; nunca se persiste.
type GoogleClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	HostedDomain  string
	Name          string
	GivenName     string
	FamilyName    string
}

// FullName arma el nombre a mostrar a partir de los claims de perfil.
func (c GoogleClaims) FullName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	parts := make([]string, 0, 2)
	for _, p := range []string{c.GivenName, c.FamilyName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// TokenVerifier verifica un identity token opaco y extrae sus claims.
// clientIDHint restringe la audiencia esperada cuando el frontend la
// declara; si no está en la lista configurada se ignora.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken, clientIDHint string) (GoogleClaims, error)
}

// googlePayload es el resultado intermedio de la verificación:
// claims del token más emisor y audiencias según go-oidc.
type googlePayload struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	HostedDomain  string `json:"hd"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`

	issuer   string
	audience []string
}

// verifyFn es el punto de inyección para tests: la implementación real
// envuelve go-oidc contra las claves públicas de Google.
type verifyFn func(ctx context.Context, rawToken string) (googlePayload, error)

// retryKeySet reintenta una única vez cuando el fallo viene de la
// descarga de claves, nunca cuando la firma ya se evaluó: un rechazo
// definitivo no se reintenta. go-oidc no envuelve el error original
// del fetch, así que la clase se detecta por el prefijo del mensaje.
type retryKeySet struct {
	inner oidc.KeySet
}

func (k retryKeySet) VerifySignature(ctx context.Context, jwt string) ([]byte, error) {
	payload, err := k.inner.VerifySignature(ctx, jwt)
	if err != nil && strings.HasPrefix(err.Error(), "fetching keys") && ctx.Err() == nil {
		return k.inner.VerifySignature(ctx, jwt)
	}
	return payload, err
}

// GoogleTokenVerifier implementa TokenVerifier contra Google Identity
// Services. Las claves públicas viven en un oidc.RemoteKeySet que se
// refresca solo cuando llega un kid desconocido, así la rotación de
// claves no requiere reiniciar el proceso.
type GoogleTokenVerifier struct {
	audiences []string
	verify    verifyFn
}

// NewGoogleTokenVerifier construye el verificador de producción.
// El contexto dado gobierna las descargas del key set.
func NewGoogleTokenVerifier(ctx context.Context, clientIDs []string) *GoogleTokenVerifier {
	keySet := retryKeySet{inner: oidc.NewRemoteKeySet(ctx, googleJWKSURL)}
	verifier := oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{
		// La audiencia se valida aparte contra la lista completa de
		// client ids; go-oidc solo soporta uno.
		SkipClientIDCheck: true,
		// Google emite iss con y sin esquema; se valida a mano.
		SkipIssuerCheck: true,
	})

	verify := func(ctx context.Context, rawToken string) (googlePayload, error) {
		ctx, cancel := context.WithTimeout(ctx, keyFetchTimeout)
		defer cancel()

		idToken, err := verifier.Verify(ctx, rawToken)
		if err != nil {
			return googlePayload{}, err
		}
		var payload googlePayload
		if err := idToken.Claims(&payload); err != nil {
			return googlePayload{}, err
		}
		payload.issuer = idToken.Issuer
		payload.audience = idToken.Audience
		return payload, nil
	}

	return &GoogleTokenVerifier{
		audiences: append([]string(nil), clientIDs...),
		verify:    verify,
	}
}

// Verify aplica: estructura, firma, emisor, audiencia y expiración.
// Nunca incluye contenido del token en los errores devueltos.
func (v *GoogleTokenVerifier) Verify(ctx context.Context, rawToken, clientIDHint string) (GoogleClaims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" || strings.Count(rawToken, ".") != 2 {
		return GoogleClaims{}, NewLoginError(KindMalformedToken, errors.New("credential is not a compact JWS"))
	}

	payload, err := v.verify(ctx, rawToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return GoogleClaims{}, NewLoginError(KindExpired, err)
		}
		return GoogleClaims{}, NewLoginError(KindInvalidSignature, err)
	}

	if payload.issuer != googleIssuer && payload.issuer != googleIssuerBare {
		return GoogleClaims{}, NewLoginError(KindInvalidSignature, errors.New("unexpected issuer"))
	}

	if !v.audienceAllowed(payload.audience, clientIDHint) {
		return GoogleClaims{}, NewLoginError(KindAudienceMismatch, errors.New("audience not in allow list"))
	}

	if strings.TrimSpace(payload.Email) == "" {
		return GoogleClaims{}, NewLoginError(KindMalformedToken, errors.New("credential carries no email claim"))
	}

	return GoogleClaims{
		Subject:       payload.Subject,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		HostedDomain:  payload.HostedDomain,
		Name:          payload.Name,
		GivenName:     payload.GivenName,
		FamilyName:    payload.FamilyName,
	}, nil
}

// audienceAllowed acepta si alguna audiencia del token está en la lista
// configurada. Un hint válido reduce la lista a esa única audiencia; un
// hint fuera de la lista no amplía nada.
func (v *GoogleTokenVerifier) audienceAllowed(tokenAudiences []string, clientIDHint string) bool {
	expected := v.audiences
	if clientIDHint != "" {
		for _, id := range v.audiences {
			if id == clientIDHint {
				expected = []string{clientIDHint}
				break
			}
		}
	}
	for _, aud := range tokenAudiences {
		for _, id := range expected {
			if aud == id {
				return true
			}
		}
	}
	return false
}

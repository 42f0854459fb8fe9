package service

import "strings"

// DomainPolicy decide si un correo puede entrar por login federado.
// Es una función pura sobre listas de solo lectura; las listas se
// reemplazan completas en recarga de configuración, nunca se mutan.
type DomainPolicy struct {
	allowed map[string]struct{}
}

// NewDomainPolicy construye la política con los dominios permitidos.
// El folding es ASCII lower, consistente con el resto del servicio.
func NewDomainPolicy(domains []string) DomainPolicy {
	allowed := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			allowed[d] = struct{}{}
		}
	}
	return DomainPolicy{allowed: allowed}
}

// IsAllowed exige que el dominio del email esté en la lista y, si el
// token trae claim de dominio alojado (hd), que ese claim también lo
// esté. Basta que uno de los dos falle para rechazar: el claim por sí
// solo nunca habilita un email de otro dominio.
func (p DomainPolicy) IsAllowed(email, hostedDomain string) bool {
	if len(p.allowed) == 0 {
		// Lista vacía es error de configuración, no "permitir todo".
		return false
	}

	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	emailDomain := strings.ToLower(email[at+1:])
	if _, ok := p.allowed[emailDomain]; !ok {
		return false
	}

	if hostedDomain != "" {
		if _, ok := p.allowed[strings.ToLower(hostedDomain)]; !ok {
			return false
		}
	}
	return true
}

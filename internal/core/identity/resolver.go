// Package identity deriva a chave de cliente usada para contabilizar cota.
package identity

import (
	"net"
	"net/http"
	"strings"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
)

const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
)

// Metadata reúne os dados de transporte necessários para resolver a identidade.
type Metadata struct {
	ForwardedFor string
	RealIP       string
	RemoteAddr   string
}

// Resolve aplica a precedência X-Forwarded-For, X-Real-IP, endereço do peer.
// Valores malformados são aceitos como vieram; nunca falha.
func Resolve(meta Metadata) string {
	xForwardedFor := strings.TrimSpace(meta.ForwardedFor)
	if xForwardedFor != "" {
		first, _, _ := strings.Cut(xForwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	xRealIP := strings.TrimSpace(meta.RealIP)
	if xRealIP != "" {
		return xRealIP
	}

	remote := strings.TrimSpace(meta.RemoteAddr)
	if remote == "" {
		return domain.UnknownIdentity
	}

	host, _, err := net.SplitHostPort(remote)
	if err != nil || host == "" {
		return remote
	}

	return host
}

// FromRequest resolve a identidade direto de uma requisição HTTP.
func FromRequest(r *http.Request) string {
	if r == nil {
		return domain.UnknownIdentity
	}
	return Resolve(Metadata{
		ForwardedFor: r.Header.Get(HeaderForwardedFor),
		RealIP:       r.Header.Get(HeaderRealIP),
		RemoteAddr:   r.RemoteAddr,
	})
}

package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		meta Metadata
		want string
	}{
		{
			name: "forwarded for wins",
			meta: Metadata{ForwardedFor: " 203.0.113.7 , 10.0.0.1", RealIP: "198.51.100.1", RemoteAddr: "10.0.0.2:5555"},
			want: "203.0.113.7",
		},
		{
			name: "single forwarded entry",
			meta: Metadata{ForwardedFor: "203.0.113.8"},
			want: "203.0.113.8",
		},
		{
			name: "real ip when forwarded is absent",
			meta: Metadata{RealIP: "198.51.100.1", RemoteAddr: "10.0.0.2:5555"},
			want: "198.51.100.1",
		},
		{
			name: "empty first forwarded entry falls through",
			meta: Metadata{ForwardedFor: " , 10.0.0.1", RealIP: "198.51.100.2"},
			want: "198.51.100.2",
		},
		{
			name: "empty first forwarded entry without real ip uses peer",
			meta: Metadata{ForwardedFor: ", 1.2.3.4", RemoteAddr: "10.0.0.3:5555"},
			want: "10.0.0.3",
		},
		{
			name: "remote addr host",
			meta: Metadata{RemoteAddr: "192.0.2.10:43210"},
			want: "192.0.2.10",
		},
		{
			name: "ipv6 remote addr",
			meta: Metadata{RemoteAddr: "[2001:db8::1]:8080"},
			want: "2001:db8::1",
		},
		{
			name: "remote addr without port is used verbatim",
			meta: Metadata{RemoteAddr: "192.0.2.11"},
			want: "192.0.2.11",
		},
		{
			name: "malformed values are accepted",
			meta: Metadata{ForwardedFor: "not-an-ip"},
			want: "not-an-ip",
		},
		{
			name: "nothing resolves",
			meta: Metadata{},
			want: domain.UnknownIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.meta); got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/v2/tryon", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set(HeaderRealIP, "198.51.100.9")

	if got := FromRequest(req); got != "198.51.100.9" {
		t.Fatalf("expected real ip, got %q", got)
	}

	if got := FromRequest(nil); got != domain.UnknownIdentity {
		t.Fatalf("expected sentinel for nil request, got %q", got)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/handlers"
	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/middleware"
	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

// remoteAdmin implementa ports.QuotaAdmin sobre as rotas /admin/quota.
type remoteAdmin struct {
	base   string
	token  string
	client *http.Client
}

var _ ports.QuotaAdmin = (*remoteAdmin)(nil)

func newRemoteAdmin(base, token string) *remoteAdmin {
	return &remoteAdmin{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *remoteAdmin) Status(ctx context.Context, identity string) (domain.QuotaStatus, error) {
	if strings.TrimSpace(identity) == "" {
		return domain.QuotaStatus{}, domain.ErrInvalidIdentity
	}

	var body handlers.StatusResponse
	if err := a.do(ctx, http.MethodGet, "/admin/quota/"+url.PathEscape(identity), &body); err != nil {
		return domain.QuotaStatus{}, err
	}
	return domain.QuotaStatus{
		Identity: body.Identity,
		Hourly:   fromReport(domain.Hourly, body.Hourly),
		Daily:    fromReport(domain.Daily, body.Daily),
	}, nil
}

func (a *remoteAdmin) Reset(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.ErrInvalidIdentity
	}
	return a.do(ctx, http.MethodDelete, "/admin/quota/"+url.PathEscape(identity), nil)
}

func (a *remoteAdmin) ResetAll(ctx context.Context) (int, error) {
	var body struct {
		Removed int `json:"removed"`
	}
	if err := a.do(ctx, http.MethodDelete, "/admin/quota", &body); err != nil {
		return 0, err
	}
	return body.Removed, nil
}

func (a *remoteAdmin) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if a.token != "" {
		req.Header.Set(middleware.HeaderAdminToken, a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.StoreUnavailable("admin api", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		return domain.ErrInvalidIdentity
	case http.StatusServiceUnavailable:
		return domain.StoreUnavailable("admin api", fmt.Errorf("server answered 503"))
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("admin api %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode admin response: %w", err)
	}
	return nil
}

func fromReport(kind domain.WindowKind, r handlers.WindowReport) domain.WindowStatus {
	return domain.WindowStatus{
		Kind:      kind,
		Limit:     r.Limit,
		Used:      r.Used,
		Remaining: r.Remaining,
	}
}

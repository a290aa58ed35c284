package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"portal-edge/internal/client"
	"portal-edge/internal/config"
	"portal-edge/internal/model"
)

const maxUserBody = 1 << 20

// Authorizer checks upload permissions with a live /me call per request.
type Authorizer struct {
	client     *client.BackendClient
	resolver   *config.Resolver
	mePath     string
	adminRoles map[string]bool
	permission string
	logger     *slog.Logger
}

// NewAuthorizer creates an Authorizer from the upload policy in cfg.
func NewAuthorizer(c *client.BackendClient, r *config.Resolver, cfg *config.Config, logger *slog.Logger) *Authorizer {
	roles := make(map[string]bool, len(cfg.Upload.AdminRoles))
	for _, role := range cfg.Upload.AdminRoles {
		roles[strings.ToLower(role)] = true
	}
	return &Authorizer{
		client:     c,
		resolver:   r,
		mePath:     cfg.Backend.MePath,
		adminRoles: roles,
		permission: cfg.Upload.Permission,
		logger:     logger.With("component", "authorizer"),
	}
}

// Authorize resolves the current user and requires an admin role or the
// file-management permission. It fails closed: any failure to determine the
// user is an error, never a grant.
func (a *Authorizer) Authorize(ctx context.Context, rc model.RequestContext) (*model.User, error) {
	if rc.AuthToken == "" {
		return nil, &AuthError{Reason: "missing token"}
	}

	target := model.NewUpstreamTarget(a.resolver.InternalURL(), a.mePath, nil, a.resolver.Headers(rc))
	resp, err := a.client.Fetch(ctx, http.MethodGet, target, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("permission check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Reason: "token rejected by backend"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("permission check: %w", client.StatusError(a.mePath, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserBody))
	if err != nil {
		return nil, fmt.Errorf("permission check: read body: %w", err)
	}
	user, err := Decode[model.User](body)
	if err != nil {
		return nil, fmt.Errorf("permission check: %w", err)
	}

	if !a.allowed(user) {
		a.logger.Info("upload denied", "user_id", user.ID.String())
		return nil, &PermissionError{Reason: "missing " + a.permission + " permission"}
	}
	return &user, nil
}

func (a *Authorizer) allowed(u model.User) bool {
	if a.adminRoles[strings.ToLower(u.Role)] {
		return true
	}
	for _, role := range u.Roles {
		if a.adminRoles[strings.ToLower(role)] {
			return true
		}
	}
	return u.Permissions.Has(a.permission)
}

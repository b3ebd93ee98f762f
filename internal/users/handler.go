package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gogain/ledger/internal/audit"
	"github.com/gogain/ledger/internal/auth"
	"github.com/gogain/ledger/internal/platform/httpx"
	"github.com/gogain/ledger/internal/rbac"
)

// Repository is the persistence surface the handlers need. *Store
// implements it.
type Repository interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id string, p UpdateParams) (*User, error)
	Delete(ctx context.Context, id string) error
}

// Sessions creates and revokes login sessions. *auth.SessionStore
// implements it.
type Sessions interface {
	Create(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	Revoke(ctx context.Context, sessionID string) error
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Handler serves the /users endpoints.
type Handler struct {
	users    Repository
	sessions Sessions
	tokens   *auth.TokenService
	audit    audit.Logger
	rs       *httpx.Responder
}

func NewHandler(users Repository, sessions Sessions, tokens *auth.TokenService, auditLog audit.Logger, rs *httpx.Responder) *Handler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Handler{users: users, sessions: sessions, tokens: tokens, audit: auditLog, rs: rs}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type createRequest struct {
	Email            string         `json:"email" validate:"required,email"`
	Password         string         `json:"password" validate:"required,min=4,max=72"`
	FirstName        string         `json:"firstName" validate:"required"`
	LastName         string         `json:"lastName" validate:"required"`
	Percentage       float64        `json:"percentage" validate:"gte=0,lte=100"`
	Role             rbac.Role      `json:"role" validate:"omitempty,oneof=super_admin admin manager worker viewer"`
	Permissions      map[string]any `json:"permissions"`
	AssignedCenters  []any          `json:"assignedCenters"`
	AssignedServices []any          `json:"assignedServices"`
}

type updateRequest struct {
	Email            *string        `json:"email" validate:"omitempty,email"`
	Password         *string        `json:"password" validate:"omitempty,min=4,max=72"`
	FirstName        *string        `json:"firstName" validate:"omitempty,min=1"`
	LastName         *string        `json:"lastName" validate:"omitempty,min=1"`
	Percentage       *float64       `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	Role             *rbac.Role     `json:"role" validate:"omitempty,oneof=super_admin admin manager worker viewer"`
	Permissions      map[string]any `json:"permissions"`
	AssignedCenters  *[]any         `json:"assignedCenters"`
	AssignedServices *[]any         `json:"assignedServices"`
}

type permissionsRequest struct {
	Role             *rbac.Role     `json:"role" validate:"omitempty,oneof=super_admin admin manager worker viewer"`
	Permissions      map[string]any `json:"permissions"`
	AssignedCenters  *[]any         `json:"assignedCenters"`
	AssignedServices *[]any         `json:"assignedServices"`
}

// HandleLogin exchanges credentials for a bearer token backed by a new
// session.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.rs.Error(w, r, httpx.Invalid("Email and password are required", nil))
		return
	}

	u, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		h.rs.Error(w, r, err)
		return
	}
	hash := ""
	if u != nil {
		hash = u.PasswordHash
	}
	if err := auth.CheckPassword(hash, req.Password); err != nil {
		h.rs.Error(w, r, httpx.Unauthenticated("Invalid email or password"))
		return
	}

	identity := &auth.Identity{UserID: u.ID, Email: u.Email, Role: string(u.Role)}
	token, err := h.tokens.CreateAccessToken(identity)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if err := h.sessions.Create(r.Context(), identity.SessionID, u.ID, h.tokens.TTL()); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	h.audit.Log(r.Context(), audit.Event{
		UserID:       audit.ParseActorID(u.ID),
		Action:       audit.ActionSessionCreated,
		ResourceType: audit.ResourceUser,
		ResourceID:   u.ID,
	})
	httpx.JSON(w, http.StatusOK, map[string]any{"user": u, "authToken": token})
}

// HandleLogout revokes the session of the presented token only.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		h.rs.Error(w, r, httpx.Unauthenticated("Authentication required"))
		return
	}
	if err := h.sessions.Revoke(r.Context(), identity.SessionID); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.audit.Log(r.Context(), audit.Event{
		UserID:       audit.ParseActorID(identity.UserID),
		Action:       audit.ActionSessionRevoked,
		ResourceType: audit.ResourceUser,
		ResourceID:   identity.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the authenticated user.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := rbac.GetPrincipal(r.Context())
	if p == nil {
		h.rs.Error(w, r, httpx.Unauthenticated("Authentication required"))
		return
	}
	u, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": u})
}

// HandleMyPermissions returns the caller's effective matrix and scope.
func (h *Handler) HandleMyPermissions(w http.ResponseWriter, r *http.Request) {
	p := rbac.GetPrincipal(r.Context())
	if p == nil {
		h.rs.Error(w, r, httpx.Unauthenticated("Authentication required"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":             p.Role,
		"permissions":      p.Effective(),
		"assignedCenters":  p.AssignedCenters,
		"assignedServices": p.AssignedServices,
	})
}

// HandleCreate creates a user. Role assignment goes through the mutation
// guard; scope lists and overrides are sanitised.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor := rbac.GetPrincipal(r.Context())

	var req createRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = rbac.RoleViewer
	}
	if err := rbac.AuthorizeUserWrite(actor, rbac.RoleChange{NewRole: &req.Role}); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}

	u, err := h.users.Create(r.Context(), &User{
		Email:            req.Email,
		PasswordHash:     hash,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Percentage:       req.Percentage,
		Role:             req.Role,
		Permissions:      rbac.ParseOverrides(req.Permissions),
		AssignedCenters:  rbac.SanitizeRefs(req.AssignedCenters),
		AssignedServices: rbac.SanitizeRefs(req.AssignedServices),
	})
	if err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}

	h.audit.Log(r.Context(), audit.Event{
		UserID:       audit.ParseActorID(actor.UserID),
		Action:       audit.ActionUserCreated,
		ResourceType: audit.ResourceUser,
		ResourceID:   u.ID,
		Metadata:     map[string]any{"role": u.Role},
	})
	httpx.JSON(w, http.StatusCreated, map[string]any{"user": u})
}

// HandleList returns the users the caller may see.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if list == nil {
		list = []User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"users": rbac.Filter(rbac.DataUsers, list, rbac.GetPrincipal(r.Context())),
	})
}

// HandleUpdate applies a partial update to a user.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	params := UpdateParams{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Percentage:  req.Percentage,
		Role:        req.Role,
		Permissions: parseOverrides(req.Permissions),
	}
	params.AssignedCenters = sanitizeOptional(req.AssignedCenters)
	params.AssignedServices = sanitizeOptional(req.AssignedServices)
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.rs.Error(w, r, err)
			return
		}
		params.PasswordHash = &hash
	}

	h.update(w, r, params, audit.ActionUserUpdated)
}

// HandleUpdatePermissions replaces a user's role, overrides or scope.
func (h *Handler) HandleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionsRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.update(w, r, UpdateParams{
		Role:             req.Role,
		Permissions:      parseOverrides(req.Permissions),
		AssignedCenters:  sanitizeOptional(req.AssignedCenters),
		AssignedServices: sanitizeOptional(req.AssignedServices),
	}, audit.ActionUserPermissionsUpdated)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, params UpdateParams, action string) {
	actor := rbac.GetPrincipal(r.Context())
	id := r.PathValue("id")

	target, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}
	change := rbac.RoleChange{TargetID: target.ID, TargetRole: target.Role, NewRole: params.Role}
	if err := rbac.AuthorizeUserWrite(actor, change); err != nil {
		h.rs.Error(w, r, err)
		return
	}

	updated, err := h.users.Update(r.Context(), target.ID, params)
	if err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}

	h.audit.Log(r.Context(), audit.Event{
		UserID:       audit.ParseActorID(actor.UserID),
		Action:       action,
		ResourceType: audit.ResourceUser,
		ResourceID:   updated.ID,
		Metadata:     map[string]any{"fields": changedFields(params)},
	})
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": updated.ID, "updatedUser": updated})
}

// HandleDelete deletes a user and revokes all of their sessions.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor := rbac.GetPrincipal(r.Context())
	id := r.PathValue("id")

	if err := rbac.AuthorizeUserDelete(actor, id); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.rs.Error(w, r, h.mapError(err))
		return
	}
	// The user is already gone. Leftover sessions fail principal loading,
	// so a failed revoke is logged and the delete still succeeds.
	meta := map[string]any{}
	revoked, err := h.sessions.RevokeAll(r.Context(), id)
	if err != nil {
		slog.WarnContext(r.Context(), "revoking sessions of deleted user", "user_id", id, "error", err)
		meta["revokeFailed"] = true
	} else {
		meta["revokedSessions"] = revoked
	}

	h.audit.Log(r.Context(), audit.Event{
		UserID:       audit.ParseActorID(actor.UserID),
		Action:       audit.ActionUserDeleted,
		ResourceType: audit.ResourceUser,
		ResourceID:   id,
		Metadata:     meta,
	})
	httpx.JSON(w, http.StatusOK, map[string]any{
		"userId":      id,
		"deleteInfos": map[string]int{"deletedCount": 1},
	})
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return httpx.NotFound("User not found")
	case errors.Is(err, ErrEmailDuplicate):
		return httpx.Conflict("Email is already in use")
	default:
		return err
	}
}

func parseOverrides(raw map[string]any) rbac.Overrides {
	if raw == nil {
		return nil
	}
	return rbac.ParseOverrides(raw)
}

func sanitizeOptional(raw *[]any) []string {
	if raw == nil {
		return nil
	}
	return rbac.SanitizeRefs(*raw)
}

func changedFields(p UpdateParams) []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Email != nil, "email")
	add(p.PasswordHash != nil, "password")
	add(p.FirstName != nil, "firstName")
	add(p.LastName != nil, "lastName")
	add(p.Percentage != nil, "percentage")
	add(p.Role != nil, "role")
	add(p.Permissions != nil, "permissions")
	add(p.AssignedCenters != nil, "assignedCenters")
	add(p.AssignedServices != nil, "assignedServices")
	return fields
}

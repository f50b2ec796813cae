package glpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

// DefaultProfiles maps local roles to remote privilege profiles.
var DefaultProfiles = map[domain.Role]int{
	domain.RoleAdmin:        4,
	domain.RoleSupportAgent: 3,
	domain.RoleClient:       2,
}

// duplicateMarkers are fragments of the remote message reported when a
// user with the same login already exists.
var duplicateMarkers = []string{"already exists", "already used", "existe déjà", "déjà utilisé", "duplicate"}

// Reconciler maps a local identity to a remote user id, creating the remote
// user when none exists.
type Reconciler struct {
	t            *transport
	profiles     map[domain.Role]int
	tempPassword string
	cache        *expirable.LRU[string, int]
	logger       *slog.Logger
}

// ReconcilerOption configures the reconciler.
type ReconcilerOption func(*Reconciler)

// WithProfiles overrides the role to profile mapping.
func WithProfiles(p map[domain.Role]int) ReconcilerOption {
	return func(r *Reconciler) {
		if len(p) > 0 {
			r.profiles = p
		}
	}
}

// WithTempPassword sets the credential given to created users. When empty a
// random one is generated per user.
func WithTempPassword(pw string) ReconcilerOption {
	return func(r *Reconciler) {
		r.tempPassword = pw
	}
}

// WithCache sets the size and TTL of the email to remote id cache.
// A zero size disables caching.
func WithCache(size int, ttl time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if size <= 0 {
			r.cache = nil
			return
		}
		r.cache = expirable.NewLRU[string, int](size, nil, ttl)
	}
}

func newReconciler(t *transport, logger *slog.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		t:        t,
		profiles: DefaultProfiles,
		cache:    expirable.NewLRU[string, int](1024, nil, 15*time.Minute),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the remote user id for id, creating the user if absent.
// A concurrent creation reported as a duplicate is recovered by searching again once.
func (r *Reconciler) Resolve(ctx context.Context, id domain.Identity) (int, error) {
	if err := id.Validate(); err != nil {
		return 0, err
	}
	key := id.Key()
	if r.cache != nil {
		if uid, ok := r.cache.Get(key); ok {
			return uid, nil
		}
	}

	uid, err := r.resolve(ctx, id)
	if err != nil {
		return 0, err
	}
	if r.cache != nil {
		r.cache.Add(key, uid)
	}
	return uid, nil
}

func (r *Reconciler) resolve(ctx context.Context, id domain.Identity) (int, error) {
	uid, found, err := r.search(ctx, id.Email)
	if errors.Is(err, domain.ErrAuth) {
		return 0, err
	}
	if err != nil {
		return 0, reconcileError("user search failed", err)
	}
	if found {
		return uid, nil
	}

	uid, err = r.create(ctx, id)
	if err == nil {
		r.logger.Info("created remote user", slog.String("email", id.Email), slog.Int("remote_id", uid))
		return uid, nil
	}
	if errors.Is(err, domain.ErrAuth) {
		return 0, err
	}
	if !isDuplicate(err) {
		return 0, reconcileError("user creation failed", err)
	}

	r.logger.Info("remote user created concurrently, searching again", slog.String("email", id.Email))
	uid, found, serr := r.search(ctx, id.Email)
	if serr != nil {
		return 0, reconcileError("user search after duplicate failed", serr)
	}
	if !found {
		return 0, reconcileError("user reported as existing but not found", err)
	}
	return uid, nil
}

// search looks the email up in the remote directory. An exact email match
// wins over a login match, which covers directories storing the email as login.
func (r *Reconciler) search(ctx context.Context, email string) (int, bool, error) {
	q := url.Values{}
	q.Set("searchText[name]", email)
	q.Set("range", "0-49")

	var users []remoteUser
	_, err := r.t.call(ctx, request{op: "search_user", method: http.MethodGet, path: "/User", query: q}, &users)
	if err != nil {
		if remoteCode(err) == codeRangeExceedTotal || errors.Is(err, domain.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	loginMatch := 0
	for _, u := range users {
		if u.ID == 0 {
			continue
		}
		if domain.SameEmail(u.Email, email) {
			return u.ID, true, nil
		}
		if loginMatch == 0 && domain.SameEmail(u.Name, email) {
			loginMatch = u.ID
		}
	}
	if loginMatch != 0 {
		return loginMatch, true, nil
	}
	return 0, false, nil
}

func (r *Reconciler) create(ctx context.Context, id domain.Identity) (int, error) {
	profile, ok := r.profiles[domain.NormalizeRole(string(id.Role))]
	if !ok {
		profile = r.profiles[domain.RoleClient]
	}
	password := r.tempPassword
	if password == "" {
		password = "Tmp-" + uuid.NewString()
	}

	input := map[string]interface{}{
		"name":        id.Email,
		"realname":    id.DisplayName(),
		"password":    password,
		"password2":   password,
		"_useremails": []string{id.Email},
		"email":       id.Email,
		"profiles_id": profile,
		"entities_id": 0,
		"is_active":   1,
	}

	var out createResponse
	_, err := r.t.call(ctx, request{op: "create_user", method: http.MethodPost, path: "/User", body: envelope{Input: input}}, &out)
	if err != nil {
		return 0, err
	}
	if out.ID == 0 {
		msg := out.Message
		if msg == "" {
			msg = "user creation returned no id"
		}
		return 0, domain.NewError(domain.KindGateway, msg).WithOp("create_user")
	}
	return out.ID, nil
}

// Forget drops the cached mapping for email.
func (r *Reconciler) Forget(email string) {
	if r.cache != nil {
		r.cache.Remove(strings.ToLower(strings.TrimSpace(email)))
	}
}

func isDuplicate(err error) bool {
	var de *domain.Error
	if !errors.As(err, &de) {
		return false
	}
	msg := strings.ToLower(de.Message)
	for _, m := range duplicateMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func reconcileError(msg string, cause error) error {
	return domain.NewError(domain.KindReconciliation, fmt.Sprintf("%s: %v", msg, cause)).WithOp("resolve_user").WithCause(cause)
}

// Package auth owns the session: it logs in, keeps the access credential
// fresh and logs out. Every authenticated call obtains its bearer token from
// Manager.ValidAccessToken and from nowhere else.
//
// The Manager is the only writer of the credential store. It keeps an
// in-memory copy of the persisted session, loaded once by Init, so the
// common path (an unexpired access credential) never touches storage or
// the network.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/client/apierr"
	"github.com/dmitrijs2005/voicescreen/internal/client/credstore"
	"github.com/dmitrijs2005/voicescreen/internal/client/dedup"
	"github.com/dmitrijs2005/voicescreen/internal/client/models"
	"github.com/dmitrijs2005/voicescreen/internal/client/transport"
	"github.com/dmitrijs2005/voicescreen/internal/logging"
)

// RefreshKey is the dedup key every refresh runs under, so concurrent
// callers that find the access credential expired share one refresh.
const RefreshKey = "auth:refresh"

// Default failure messages.
const (
	msgLoginFailed    = "Login failed"
	msgRegisterFailed = "Registration failed"
	msgRefreshFailed  = "Token refresh failed"
	msgUserInfoFailed = "Failed to get user info"
	msgNoRefresh      = "No valid refresh token available"
	msgNoToken        = "No valid access token"
	msgLogoutFailed   = "Logout failed"
	msgValidateFailed = "Token validation failed"
)

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithCache shares an existing dedup cache for refresh coalescing. Without
// it the Manager creates a private one.
func WithCache(c *dedup.Cache) Option {
	return func(m *Manager) { m.cache = c }
}

// Manager is the token lifecycle manager. Construct it with NewManager and
// call Init before use.
type Manager struct {
	store   credstore.Store
	doer    transport.Doer
	cache   *dedup.Cache
	baseURL string
	now     func() time.Time
	log     logging.Logger

	// persistMu serializes session changes so that the store and the
	// in-memory copy are always written in the same order. Taken before mu.
	persistMu sync.Mutex

	mu    sync.RWMutex
	creds models.Credentials
	user  []byte

	refreshing atomic.Bool
}

func NewManager(store credstore.Store, doer transport.Doer, baseURL string, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = dedup.New(doer, dedup.WithLogger(m.log))
	}
	m.log = m.log.With("component", "auth")
	return m
}

// Init loads the persisted session.
func (m *Manager) Init(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	snap, err := m.store.Load(ctx)
	if err != nil {
		return apierr.Wrap(apierr.KindStorage, "load session", err)
	}

	m.mu.Lock()
	m.creds = snap.Credentials
	m.user = snap.User
	m.mu.Unlock()

	m.log.Debug(ctx, "session loaded", "state", m.State().String())
	return nil
}

// Login submits the credentials and, on success, persists the new session.
// On failure the current session is left as it was.
func (m *Manager) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	var resp models.LoginResponse
	if err := m.send(ctx, http.MethodPost, "/login", "", req, &resp, apierr.KindRejected, msgLoginFailed); err != nil {
		return nil, err
	}

	now := m.now()
	creds := models.Credentials{
		AccessToken:      resp.AccessToken,
		RefreshToken:     resp.RefreshToken,
		AccessExpiresAt:  expiresAt(now, resp.AccessTokenExpiresIn, resp.AccessToken),
		RefreshExpiresAt: expiresAt(now, resp.RefreshTokenExpiresIn, resp.RefreshToken),
	}
	user, err := json.Marshal(resp.User)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDecode, "encode user", err)
	}

	m.persistMu.Lock()
	if err := m.store.SaveSession(ctx, creds, user); err != nil {
		m.persistMu.Unlock()
		return nil, apierr.Wrap(apierr.KindStorage, "save session", err)
	}
	m.mu.Lock()
	m.creds = creds
	m.user = user
	m.mu.Unlock()
	m.persistMu.Unlock()

	m.log.Info(ctx, "logged in", "user_id", resp.User.ID, "access_expires_at", creds.AccessExpiresAt)
	return &resp, nil
}

// Register creates an account and returns the server's confirmation. It
// does not log the caller in.
func (m *Manager) Register(ctx context.Context, req models.RegisterRequest) (string, error) {
	if err := models.Validate(req); err != nil {
		return "", err
	}

	var resp models.MessageResponse
	if err := m.send(ctx, http.MethodPost, "/register", "", req, &resp, apierr.KindRejected, msgRegisterFailed); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ValidAccessToken returns an unexpired access credential, refreshing it
// first when it has expired. It fails with apierr.KindNoToken when there is
// no session or the refresh did not succeed.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, exp := m.creds.AccessToken, m.creds.AccessExpiresAt
	m.mu.RUnlock()

	if token == "" {
		return "", apierr.New(apierr.KindNoToken, msgNoToken, 0)
	}
	if m.now().Before(exp) {
		return token, nil
	}

	token, err := m.RefreshAccessToken(ctx)
	if err != nil {
		m.log.Warn(ctx, "failed to refresh token", "error", err)
		return "", apierr.Wrap(apierr.KindNoToken, msgNoToken, err)
	}
	return token, nil
}

// RefreshAccessToken exchanges the refresh credential for a new access
// credential. Only the access credential and its expiry change. Any failure
// after the request is sent ends the session. An access credential that is
// still unexpired, for instance because a concurrent refresh has just
// replaced it, is returned as is.
func (m *Manager) RefreshAccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	refresh, exp := m.creds.RefreshToken, m.creds.RefreshExpiresAt
	access, accessExp := m.creds.AccessToken, m.creds.AccessExpiresAt
	m.mu.RUnlock()

	now := m.now()
	if refresh == "" || !now.Before(exp) {
		return "", apierr.New(apierr.KindNoRefreshToken, msgNoRefresh, 0)
	}
	if access != "" && now.Before(accessExp) {
		return access, nil
	}

	v, err := m.cache.Do(ctx, RefreshKey, false, func(ctx context.Context) (any, error) {
		return m.refresh(ctx, refresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (string, error) {
	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	var resp models.RefreshResponse
	err := m.send(ctx, http.MethodPost, "/refresh", "", models.RefreshRequest{RefreshToken: refreshToken}, &resp, apierr.KindRefreshRejected, msgRefreshFailed)
	if err == nil && resp.AccessToken == "" {
		err = apierr.New(apierr.KindRefreshRejected, msgRefreshFailed, 0)
	}
	if err != nil {
		if apierr.KindOf(err) != apierr.KindRefreshRejected {
			err = &apierr.Error{Kind: apierr.KindRefreshRejected, Message: msgRefreshFailed, Status: apierr.StatusOf(err), Err: err}
		}
		m.endSession(ctx, refreshToken)
		return "", err
	}

	expires := expiresAt(m.now(), resp.AccessTokenExpiresIn, resp.AccessToken)

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	// a login or logout may have replaced the session meanwhile
	if !m.holds(refreshToken) {
		m.log.Debug(ctx, "discarding refreshed token of a replaced session")
		return "", apierr.New(apierr.KindNoToken, msgNoToken, 0)
	}

	if err := m.store.SaveAccess(ctx, resp.AccessToken, expires); err != nil {
		m.log.Error(ctx, "failed to persist refreshed token", "error", err)
	}

	m.mu.Lock()
	m.creds.AccessToken = resp.AccessToken
	m.creds.AccessExpiresAt = expires
	m.mu.Unlock()

	m.log.Debug(ctx, "access token refreshed", "expires_at", expires)
	return resp.AccessToken, nil
}

// holds reports whether the current session uses refreshToken.
func (m *Manager) holds(refreshToken string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return refreshToken != "" && m.creds.RefreshToken == refreshToken
}

func (m *Manager) currentRefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.RefreshToken
}

// endSession clears the session if it still belongs to refreshToken.
func (m *Manager) endSession(ctx context.Context, refreshToken string) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if !m.holds(refreshToken) {
		return
	}
	if err := m.clearLocked(ctx); err != nil {
		m.log.Error(ctx, "failed to clear session", "error", err)
	}
}

// ValidateToken asks the server whether the current access credential is
// valid. Any failure counts as invalid.
func (m *Manager) ValidateToken(ctx context.Context) bool {
	token, err := m.ValidAccessToken(ctx)
	if err != nil {
		return false
	}

	var resp models.ValidateResponse
	if err := m.send(ctx, http.MethodPost, "/validate-token", token, struct{}{}, &resp, apierr.KindRequest, msgValidateFailed); err != nil {
		m.log.Warn(ctx, "token validation failed", "error", err)
		return false
	}
	return resp.Valid
}

// UserInfo fetches the profile from the server and replaces the cached copy.
func (m *Manager) UserInfo(ctx context.Context) (*models.User, error) {
	token, err := m.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	session := m.currentRefreshToken()

	var resp models.MeResponse
	if err := m.send(ctx, http.MethodGet, "/me", token, nil, &resp, apierr.KindRequest, msgUserInfoFailed); err != nil {
		return nil, err
	}

	user, err := json.Marshal(resp.User)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDecode, "encode user", err)
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if !m.holds(session) {
		m.log.Debug(ctx, "not caching user of a replaced session")
		return &resp.User, nil
	}
	if err := m.store.SaveUser(ctx, user); err != nil {
		m.log.Warn(ctx, "failed to cache user", "error", err)
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	return &resp.User, nil
}

// Logout invalidates the refresh credential on the server and clears the
// local session. The remote call is best effort; its failure is only
// logged. The returned error reports local storage failures.
func (m *Manager) Logout(ctx context.Context) error {
	token, err := m.ValidAccessToken(ctx)

	m.mu.RLock()
	refresh := m.creds.RefreshToken
	m.mu.RUnlock()

	if err == nil && refresh != "" {
		body := models.RefreshRequest{RefreshToken: refresh}
		if err := m.send(ctx, http.MethodPost, "/logout", token, body, nil, apierr.KindRequest, msgLogoutFailed); err != nil {
			m.log.Warn(ctx, "logout call failed", "error", err)
		}
	}

	m.log.Info(ctx, "logged out")
	return m.clear(ctx)
}

// LogoutAll ends every session of the user on the server, then clears the
// local one.
func (m *Manager) LogoutAll(ctx context.Context) error {
	if token, err := m.ValidAccessToken(ctx); err == nil {
		if err := m.send(ctx, http.MethodPost, "/logout-all", token, struct{}{}, nil, apierr.KindRequest, msgLogoutFailed); err != nil {
			m.log.Warn(ctx, "logout-all call failed", "error", err)
		}
	}

	m.log.Info(ctx, "logged out of all sessions")
	return m.clear(ctx)
}

// clear drops the session in memory and in the store. The in-memory copy is
// always dropped, even when the store fails.
func (m *Manager) clear(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.clearLocked(ctx)
}

func (m *Manager) clearLocked(ctx context.Context) error {
	m.mu.Lock()
	m.creds = models.Credentials{}
	m.user = nil
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return apierr.Wrap(apierr.KindStorage, "clear session", err)
	}
	return nil
}

// IsAuthenticated reports whether an access credential is held and the
// refresh credential has not expired. It never refreshes.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.AccessToken != "" && m.now().Before(m.creds.RefreshExpiresAt)
}

// CurrentUser returns the cached profile, or nil. A cached profile that
// does not decode is dropped.
func (m *Manager) CurrentUser(ctx context.Context) *models.User {
	m.mu.RLock()
	raw := m.user
	m.mu.RUnlock()

	if len(raw) == 0 {
		return nil
	}

	var u models.User
	if err := json.Unmarshal(raw, &u); err != nil {
		m.log.Warn(ctx, "discarding malformed cached user", "error", err)
		m.dropUser(ctx, raw)
		return nil
	}
	return &u
}

// AccessToken returns the access credential as held, without checking
// its expiry.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.AccessToken
}

// dropUser deletes the cached profile unless it was replaced after raw was
// read.
func (m *Manager) dropUser(ctx context.Context, raw []byte) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	same := bytes.Equal(m.user, raw)
	if same {
		m.user = nil
	}
	m.mu.Unlock()
	if !same {
		return
	}

	if err := m.store.DeleteUser(ctx); err != nil {
		m.log.Warn(ctx, "failed to delete cached user", "error", err)
	}
}

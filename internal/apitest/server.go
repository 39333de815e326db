// Package apitest runs an in-process screening API for tests: accounts,
// JWT access credentials, opaque refresh credentials and stored results,
// all in memory. Its clock is injectable so tests can expire credentials
// without sleeping.
package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

type user struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	CreatedAt string `json:"created_at"`

	passwordHash []byte
}

type result struct {
	ID                int64    `json:"id"`
	DiseaseStatus     string   `json:"disease_status"`
	ConfidenceScore   *float64 `json:"confidence_score"`
	RecordingDuration *float64 `json:"recording_duration,omitempty"`
	CreatedAt         string   `json:"created_at"`

	userID int64
}

type refreshToken struct {
	userID  int64
	expires time.Time
}

// Server is a fake screening API.
type Server struct {
	*httptest.Server

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	secret []byte

	mu       sync.Mutex
	now      func() time.Time
	users    map[string]*user
	refresh  map[string]refreshToken
	results  []result
	nextID   int64
	gates    map[string]chan struct{}
	requests map[string]int

	writes atomic.Int32
}

// New starts a server; it is closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		secret:     []byte(uuid.NewString()),
		now:        time.Now,
		users:      make(map[string]*user),
		refresh:    make(map[string]refreshToken),
		gates:      make(map[string]chan struct{}),
		requests:   make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// SetClock replaces the clock used to issue and check credentials.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Server) clock() time.Time {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()
	return now()
}

// Hold makes requests to path block until the returned release func is
// called.
func (s *Server) Hold(path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[path] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, path)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests reports how many requests reached path.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// ResultWrites reports how many results were stored.
func (s *Server) ResultWrites() int {
	return int(s.writes.Load())
}

// RefreshTokens reports how many refresh credentials are live.
func (s *Server) RefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.track)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/logout", s.handleLogout)
		r.Post("/logout-all", s.handleLogoutAll)
		r.Post("/validate-token", s.handleValidate)
		r.Get("/me", s.handleMe)
		r.Post("/start_recording", s.handleRecording("Recording started"))
		r.Post("/stop_recording", s.handleRecording("Recording stopped"))
		r.Post("/results", s.handleSaveResult)
		r.Get("/my-results", s.handleMyResults)
		r.Get("/user-result/{id}", s.handleUserResults)
	})
	return r
}

// track counts the request and waits on a gate installed by Hold.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		gate := s.gates[r.URL.Path]
		s.mu.Unlock()

		if gate != nil {
			<-gate
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey string

const userIDKey ctxKey = "userID"

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing token")
			return
		}

		userID, err := userIDFromToken(token, s.secret, s.clock)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func currentUserID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"full_name"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Age      int    `json:"age"`
		Gender   string `json:"gender"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.Email]; ok {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	s.nextID++
	s.users[req.Email] = &user{
		ID: s.nextID, Email: req.Email, Username: req.Username, FullName: req.FullName,
		Age: req.Age, Gender: req.Gender, CreatedAt: s.now().UTC().Format(time.RFC3339),
		passwordHash: hash,
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	now := s.clock()
	access, err := generateToken(u.ID, s.secret, now, s.AccessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh := uuid.NewString()

	s.mu.Lock()
	s.refresh[refresh] = refreshToken{userID: u.ID, expires: now.Add(s.RefreshTTL)}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"message":                  "Login successful",
		"access_token":             access,
		"refresh_token":            refresh,
		"access_token_expires_in":  int64(s.AccessTTL.Seconds()),
		"refresh_token_expires_in": int64(s.RefreshTTL.Seconds()),
		"token_type":               "Bearer",
		"user":                     u,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	now := s.clock()
	s.mu.Lock()
	rt, ok := s.refresh[req.RefreshToken]
	s.mu.Unlock()
	if !ok || !now.Before(rt.expires) {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	access, err := generateToken(rt.userID, s.secret, now, s.AccessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":                 "Token refreshed successfully",
		"access_token":            access,
		"access_token_expires_in": int64(s.AccessTTL.Seconds()),
		"token_type":              "Bearer",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	delete(s.refresh, req.RefreshToken)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	s.mu.Lock()
	for tok, rt := range s.refresh {
		if rt.userID == userID {
			delete(s.refresh, tok)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out from all devices"})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user_id": currentUserID(r)})
}

func (s *Server) userByID(id int64) *user {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := s.userByID(currentUserID(r))
	s.mu.Unlock()
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) handleRecording(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": msg})
	}
}

func (s *Server) handleSaveResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DiseaseStatus     string   `json:"disease_status"`
		PercentageNormal  float64  `json:"percentage_normal"`
		RecordingDuration *float64 `json:"recording_duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DiseaseStatus == "" {
		writeError(w, http.StatusBadRequest, "disease_status is required")
		return
	}

	s.writes.Add(1)
	s.mu.Lock()
	id := int64(len(s.results) + 1)
	score := req.PercentageNormal
	s.results = append(s.results, result{
		ID: id, DiseaseStatus: req.DiseaseStatus, ConfidenceScore: &score,
		RecordingDuration: req.RecordingDuration, CreatedAt: s.now().UTC().Format(time.RFC3339),
		userID: currentUserID(r),
	})
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"message": "Result saved successfully", "result_id": id})
}

func (s *Server) history(userID int64) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]result, 0)
	for _, res := range s.results {
		if res.userID == userID {
			out = append(out, res)
		}
	}
	return map[string]any{"user": s.userByID(userID), "results": out}
}

func (s *Server) handleMyResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history(currentUserID(r)))
}

func (s *Server) handleUserResults(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if id != currentUserID(r) {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}
	writeJSON(w, http.StatusOK, s.history(id))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/dmitrijs2005/voicescreen/internal/client/auth"
	"github.com/dmitrijs2005/voicescreen/internal/client/dedup"
	"github.com/dmitrijs2005/voicescreen/internal/client/models"
	"github.com/dmitrijs2005/voicescreen/internal/logging"
)

type fakeAuth struct {
	state     auth.State
	loggedIn  bool
	user      *models.User
	valid     bool
	loginErr  error
	regMsg    string
	regErr    error
	logoutErr error
	infoErr   error

	lastLogin    models.LoginRequest
	lastRegister models.RegisterRequest
	logoutCalls  int
	logoutAll    int
}

func (f *fakeAuth) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.loggedIn, f.state = true, auth.Valid
	return &models.LoginResponse{User: *f.user}, nil
}

func (f *fakeAuth) Register(_ context.Context, req models.RegisterRequest) (string, error) {
	f.lastRegister = req
	return f.regMsg, f.regErr
}

func (f *fakeAuth) Logout(context.Context) error {
	f.logoutCalls++
	f.loggedIn, f.state = false, auth.LoggedOut
	return f.logoutErr
}

func (f *fakeAuth) LogoutAll(context.Context) error {
	f.logoutAll++
	f.loggedIn, f.state = false, auth.LoggedOut
	return f.logoutErr
}

func (f *fakeAuth) UserInfo(context.Context) (*models.User, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.user, nil
}

func (f *fakeAuth) ValidateToken(context.Context) bool       { return f.valid }
func (f *fakeAuth) IsAuthenticated() bool                    { return f.loggedIn }
func (f *fakeAuth) CurrentUser(context.Context) *models.User { return f.user }
func (f *fakeAuth) State() auth.State                        { return f.state }

type fakeRecordings struct {
	startBody json.RawMessage
	err       error
	saved     *models.SaveResultRequest
	history   []models.Recording
}

func (f *fakeRecordings) StartRecording(context.Context) (json.RawMessage, error) {
	return f.startBody, f.err
}

func (f *fakeRecordings) StopRecording(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"message":"stopped"}`), f.err
}

func (f *fakeRecordings) SaveResult(_ context.Context, req models.SaveResultRequest) (*models.SaveResultResponse, error) {
	f.saved = &req
	if f.err != nil {
		return nil, f.err
	}
	return &models.SaveResultResponse{Message: "Result saved", ResultID: 9}, nil
}

func (f *fakeRecordings) RecordingHistory(context.Context) []models.Recording {
	return f.history
}

type fakeRegistry struct {
	entries   []dedup.DebugEntry
	stats     dedup.Stats
	cancelled int
}

func (f *fakeRegistry) DebugInfo() []dedup.DebugEntry { return f.entries }
func (f *fakeRegistry) Stats() dedup.Stats            { return f.stats }
func (f *fakeRegistry) CancelAll() int {
	n := len(f.entries)
	f.cancelled += n
	f.entries = nil
	return n
}

// newTestApp builds an App around fakes, reading input from the given
// lines and writing to the returned buffer.
func newTestApp(fa *fakeAuth, input ...string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	return &App{
		auth:       fa,
		recordings: &fakeRecordings{},
		requests:   &fakeRegistry{},
		log:        logging.Nop(),
		reader:     bufio.NewReader(strings.NewReader(strings.Join(input, "\n"))),
		out:        &out,
	}, &out
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	orig := getPassword
	getPassword = func(io.Writer) ([]byte, error) { return []byte(pw), nil }
	t.Cleanup(func() { getPassword = orig })
}

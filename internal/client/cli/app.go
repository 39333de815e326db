package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/voicescreen/internal/client/auth"
	"github.com/dmitrijs2005/voicescreen/internal/client/config"
	"github.com/dmitrijs2005/voicescreen/internal/client/credstore"
	"github.com/dmitrijs2005/voicescreen/internal/client/dedup"
	"github.com/dmitrijs2005/voicescreen/internal/client/localdb"
	"github.com/dmitrijs2005/voicescreen/internal/client/models"
	"github.com/dmitrijs2005/voicescreen/internal/client/services"
	"github.com/dmitrijs2005/voicescreen/internal/client/transport"
	"github.com/dmitrijs2005/voicescreen/internal/filex"
	"github.com/dmitrijs2005/voicescreen/internal/logging"
)

// authManager is the part of *auth.Manager the CLI uses.
type authManager interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (string, error)
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	UserInfo(ctx context.Context) (*models.User, error)
	ValidateToken(ctx context.Context) bool
	IsAuthenticated() bool
	CurrentUser(ctx context.Context) *models.User
	State() auth.State
}

type recordingService interface {
	StartRecording(ctx context.Context) (json.RawMessage, error)
	StopRecording(ctx context.Context) (json.RawMessage, error)
	SaveResult(ctx context.Context, req models.SaveResultRequest) (*models.SaveResultResponse, error)
	RecordingHistory(ctx context.Context) []models.Recording
}

type requestRegistry interface {
	DebugInfo() []dedup.DebugEntry
	CancelAll() int
	Stats() dedup.Stats
}

type App struct {
	config     *config.Config
	auth       authManager
	recordings recordingService
	requests   requestRegistry
	metrics    prometheus.Gatherer
	log        logging.Logger

	reader *bufio.Reader
	out    io.Writer

	mu    sync.Mutex
	state auth.State

	closers []func() error
}

// NewApp opens the credential store selected by c, builds the HTTP stack
// and loads the persisted session.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(c.LogLevel, c.LogFormat, os.Stderr)
	a := &App{
		config: c,
		log:    log,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	a.metrics = registry

	tcfg := transport.DefaultConfig()
	tcfg.Timeout = c.HTTPTimeout
	var doer transport.Doer = transport.New(tcfg)
	if c.BreakerEnabled {
		doer, err = transport.NewBreakerDoer(doer, transport.DefaultBreakerConfig("voicescreen-api"), registry, log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	cache := dedup.New(doer, dedup.WithTTL(c.RequestTTL), dedup.WithLogger(log))
	if err := registry.Register(dedup.NewCollector(cache)); err != nil {
		_ = a.Close()
		return nil, err
	}

	manager := auth.NewManager(store, doer, c.BaseURL, auth.WithCache(cache), auth.WithLogger(log))
	if err := manager.Init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.auth = manager
	a.requests = cache
	a.recordings = services.NewRecordingService(manager, cache, c.BaseURL, log)
	a.state = manager.State()
	return a, nil
}

func (a *App) openStore(ctx context.Context) (credstore.Store, error) {
	switch a.config.CredentialBackend {
	case config.BackendSQLite:
		if _, err := filex.EnsureParentDir(a.config.DatabasePath); err != nil {
			return nil, fmt.Errorf("error initializing database: %w", err)
		}
		db, err := localdb.Open(ctx, a.config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("error initializing database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return credstore.NewSQLiteStore(db), nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", a.config.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		return credstore.NewRedisStore(client, a.config.Profile), nil

	case config.BackendMemory:
		return credstore.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown credential backend %q", a.config.CredentialBackend)
	}
}

// Close releases the credential store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run starts the status watcher and the REPL and blocks until the user
// exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.StartStatusWatcher(ctx, a.config.StatusCheckInterval)

	fmt.Fprintln(a.out, "Welcome to voicescreen CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

func (a *App) isLoggedIn() bool {
	return a.auth.IsAuthenticated()
}

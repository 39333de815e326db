package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/client/auth"
)

func (a *App) setState(ctx context.Context, s auth.State) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()

	if changed {
		a.log.Info(ctx, "session state changed", "state", s.String())
	}
}

func (a *App) currentState() auth.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) getStatus() string {
	s := a.currentState().String()
	if u := a.auth.CurrentUser(context.Background()); u != nil && a.isLoggedIn() {
		s = u.Username + " " + s
	}
	return fmt.Sprintf("(%s)", s)
}

// StartStatusWatcher re-reads the session state every interval until ctx
// is done. It never refreshes or calls the server.
func (a *App) StartStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.setState(ctx, a.auth.State())
		case <-ctx.Done():
			return
		}
	}
}

package auth

// State is the session state derived from the held credentials and the
// clock.
type State int

const (
	LoggedOut State = iota
	// Valid means the access credential has not expired.
	Valid
	// AccessExpired means only the refresh credential is still usable.
	AccessExpired
	// Refreshing is transient while a refresh request is in flight.
	Refreshing
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Valid:
		return "valid"
	case AccessExpired:
		return "access_expired"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// State reports the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()

	if creds.AccessToken == "" {
		return LoggedOut
	}
	if m.refreshing.Load() {
		return Refreshing
	}

	now := m.now()
	if now.Before(creds.AccessExpiresAt) {
		return Valid
	}
	if creds.RefreshToken != "" && now.Before(creds.RefreshExpiresAt) {
		return AccessExpired
	}
	return LoggedOut
}

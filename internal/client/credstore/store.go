// Package credstore is the durable home of the session: the access and
// refresh credentials, their expiry instants and the cached user profile.
//
// Five named slots are kept. Expiries are stored as decimal milliseconds
// since the Unix epoch; a slot that is missing or does not parse loads as
// the zero value. Only the token manager writes to a Store.
package credstore

import (
	"context"
	"strconv"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/client/models"
)

// Slot names.
const (
	SlotAccessToken      = "access_token"
	SlotRefreshToken     = "refresh_token"
	SlotAccessExpiresAt  = "access_token_expires_at"
	SlotRefreshExpiresAt = "refresh_token_expires_at"
	SlotUser             = "user"
)

// Slots lists every slot a Store owns.
var Slots = []string{
	SlotAccessToken,
	SlotRefreshToken,
	SlotAccessExpiresAt,
	SlotRefreshExpiresAt,
	SlotUser,
}

// Snapshot is everything a Store holds. User is the serialized profile as
// written; it is not validated on load.
type Snapshot struct {
	Credentials models.Credentials
	User        []byte
}

// Store persists a Snapshot slot by slot.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	// SaveSession writes all five slots. A nil user removes the user slot.
	SaveSession(ctx context.Context, creds models.Credentials, user []byte) error
	// SaveAccess replaces the access credential and its expiry only.
	SaveAccess(ctx context.Context, token string, expiresAt time.Time) error
	SaveUser(ctx context.Context, user []byte) error
	DeleteUser(ctx context.Context) error
	// Clear removes all five slots.
	Clear(ctx context.Context) error
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseInstant(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// fromSlots builds a Snapshot from raw slot values.
func fromSlots(get func(slot string) ([]byte, bool)) Snapshot {
	var s Snapshot
	if v, ok := get(SlotAccessToken); ok {
		s.Credentials.AccessToken = string(v)
	}
	if v, ok := get(SlotRefreshToken); ok {
		s.Credentials.RefreshToken = string(v)
	}
	if v, ok := get(SlotAccessExpiresAt); ok {
		s.Credentials.AccessExpiresAt = parseInstant(string(v))
	}
	if v, ok := get(SlotRefreshExpiresAt); ok {
		s.Credentials.RefreshExpiresAt = parseInstant(string(v))
	}
	if v, ok := get(SlotUser); ok && len(v) > 0 {
		s.User = v
	}
	return s
}

// sessionSlots renders creds into the four credential slots.
func sessionSlots(creds models.Credentials) map[string][]byte {
	return map[string][]byte{
		SlotAccessToken:      []byte(creds.AccessToken),
		SlotRefreshToken:     []byte(creds.RefreshToken),
		SlotAccessExpiresAt:  []byte(formatInstant(creds.AccessExpiresAt)),
		SlotRefreshExpiresAt: []byte(formatInstant(creds.RefreshExpiresAt)),
	}
}

package credstore

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/client/models"
)

// MemoryStore keeps the slots in process memory. A session stored here does
// not outlive the process.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

func (s *MemoryStore) Load(context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fromSlots(func(slot string) ([]byte, bool) {
		v, ok := s.slots[slot]
		return append([]byte(nil), v...), ok
	}), nil
}

func (s *MemoryStore) SaveSession(_ context.Context, creds models.Credentials, user []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, v := range sessionSlots(creds) {
		s.slots[slot] = v
	}
	if user == nil {
		delete(s.slots, SlotUser)
	} else {
		s.slots[SlotUser] = append([]byte(nil), user...)
	}
	return nil
}

func (s *MemoryStore) SaveAccess(_ context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[SlotAccessToken] = []byte(token)
	s.slots[SlotAccessExpiresAt] = []byte(formatInstant(expiresAt))
	return nil
}

func (s *MemoryStore) SaveUser(_ context.Context, user []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[SlotUser] = append([]byte(nil), user...)
	return nil
}

func (s *MemoryStore) DeleteUser(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.slots, SlotUser)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.slots)
	return nil
}

// Len reports how many slots are currently set.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Set writes one raw slot value, bypassing encoding. It exists so callers
// can seed state the way another process would have left it.
func (s *MemoryStore) Set(slot string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = append([]byte(nil), value...)
}

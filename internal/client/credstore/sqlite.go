package credstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/client/models"
	"github.com/dmitrijs2005/voicescreen/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/voicescreen/internal/dbx"
)

// SQLiteStore keeps the slots in the metadata table of the local database.
// Multi-slot writes are transactional.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore expects a database migrated by localdb.Open.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) repo(tx dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(tx)
}

func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	values := make(map[string][]byte, len(Slots))
	repo := s.repo(s.db)
	for _, slot := range Slots {
		v, err := repo.Get(ctx, slot)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load credentials: %w", err)
		}
		if v != nil {
			values[slot] = v
		}
	}

	return fromSlots(func(slot string) ([]byte, bool) {
		v, ok := values[slot]
		return v, ok
	}), nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, creds models.Credentials, user []byte) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		for slot, v := range sessionSlots(creds) {
			if err := repo.Set(ctx, slot, v); err != nil {
				return err
			}
		}
		if user == nil {
			return repo.Delete(ctx, SlotUser)
		}
		return repo.Set(ctx, SlotUser, user)
	})
}

func (s *SQLiteStore) SaveAccess(ctx context.Context, token string, expiresAt time.Time) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repo(tx)
		if err := repo.Set(ctx, SlotAccessToken, []byte(token)); err != nil {
			return err
		}
		return repo.Set(ctx, SlotAccessExpiresAt, []byte(formatInstant(expiresAt)))
	})
}

func (s *SQLiteStore) SaveUser(ctx context.Context, user []byte) error {
	return s.repo(s.db).Set(ctx, SlotUser, user)
}

func (s *SQLiteStore) DeleteUser(ctx context.Context) error {
	return s.repo(s.db).Delete(ctx, SlotUser)
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.repo(s.db).Delete(ctx, Slots...)
}

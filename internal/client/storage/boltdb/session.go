package boltdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/iudanet/adminsync/internal/client/storage"
)

var (
	keyCurrent  = []byte("current")
	keyClientID = []byte("client_id")
)

// SaveSession сохраняет сессию администратора, заменяя предыдущую
func (s *Storage) SaveSession(ctx context.Context, session *storage.Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	data, err := msgpack.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSession)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}
		if err := bucket.Put(keyCurrent, data); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// GetSession возвращает сохраненную сессию или storage.ErrSessionNotFound
func (s *Storage) GetSession(ctx context.Context) (*storage.Session, error) {
	var session storage.Session

	err := s.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSession)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		data := bucket.Get(keyCurrent)
		if data == nil {
			return storage.ErrSessionNotFound
		}

		// data валидна только внутри транзакции, Unmarshal копирует значения
		if err := msgpack.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// DeleteSession удаляет сессию (logout). ClientID при этом сохраняется.
func (s *Storage) DeleteSession(ctx context.Context) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSession)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}
		if err := bucket.Delete(keyCurrent); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return nil
	})
}

// ClientID возвращает идентификатор устройства, создавая его при первом обращении
func (s *Storage) ClientID(ctx context.Context) (string, error) {
	var id string

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if existing := bucket.Get(keyClientID); existing != nil {
			id = string(existing)
			return nil
		}

		id = uuid.NewString()
		if err := bucket.Put(keyClientID, []byte(id)); err != nil {
			return fmt.Errorf("failed to save client id: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

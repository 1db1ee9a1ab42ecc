package anchorsync

import (
	"errors"
	"time"

	"github.com/himanishpuri/AnchorSync/internal/storage"
	"github.com/himanishpuri/AnchorSync/pkg/models"
)

// storageAdapter adapts the storage.DBClient to implement the Storage interface.
type storageAdapter struct {
	db  *storage.DBClient
	now func() time.Time
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return &storageAdapter{db: db, now: time.Now}, nil
}

func (s *storageAdapter) CreateAnchor(record models.CloudAnchorRecord) (models.CloudAnchorRecord, error) {
	return s.db.CreateAnchor(record)
}

func (s *storageAdapter) GetAnchor(id string) (*models.CloudAnchorRecord, error) {
	return s.db.GetAnchor(id)
}

// GetAnchorsByIDs skips records that have already expired.
func (s *storageAdapter) GetAnchorsByIDs(ids []string) (map[string]models.CloudAnchorRecord, error) {
	found, err := s.db.GetAnchorsByIDs(ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for id, rec := range found {
		if rec.Expired(now) {
			delete(found, id)
		}
	}
	return found, nil
}

func (s *storageAdapter) DeleteAnchor(id string) error {
	return s.db.DeleteAnchorByID(id)
}

func (s *storageAdapter) ListAnchors() ([]models.CloudAnchorRecord, error) {
	return s.db.ListAnchors()
}

func (s *storageAdapter) CountAnchors() (int64, error) {
	return s.db.CountAnchors()
}

func (s *storageAdapter) PurgeExpired() (int64, error) {
	return s.db.PurgeExpired(s.now())
}

func (s *storageAdapter) Close() error {
	return s.db.Close()
}

// IsNotFound reports whether err means the requested anchor does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrAnchorNotFound)
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/AnchorSync/pkg/models"
	"github.com/himanishpuri/AnchorSync/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "anchorsync.sqlite3"
const errDBClientNil = "db client is nil"

// ErrAnchorNotFound is returned when no row matches the requested identifier.
var ErrAnchorNotFound = errors.New("anchor not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Anchor is the persisted form of a cloud anchor record.
type Anchor struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	PosX      float64
	PosY      float64
	PosZ      float64
	RotX      float64
	RotY      float64
	RotZ      float64
	RotW      float64
	ExpiresAt *time.Time `gorm:"index:idx_anchor_expires_at"`
	CreatedAt time.Time
}

func (a Anchor) toRecord() models.CloudAnchorRecord {
	rec := models.CloudAnchorRecord{
		ID: a.ID,
		Pose: models.Pose{
			Position: models.Vector3{X: a.PosX, Y: a.PosY, Z: a.PosZ},
			Rotation: models.Quaternion{X: a.RotX, Y: a.RotY, Z: a.RotZ, W: a.RotW},
		},
		CreatedAt: a.CreatedAt,
	}
	if a.ExpiresAt != nil {
		exp := *a.ExpiresAt
		rec.Expiration = &exp
	}
	return rec
}

func anchorFromRecord(rec models.CloudAnchorRecord) Anchor {
	row := Anchor{
		ID:        rec.ID,
		PosX:      rec.Pose.Position.X,
		PosY:      rec.Pose.Position.Y,
		PosZ:      rec.Pose.Position.Z,
		RotX:      rec.Pose.Rotation.X,
		RotY:      rec.Pose.Rotation.Y,
		RotZ:      rec.Pose.Rotation.Z,
		RotW:      rec.Pose.Rotation.W,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Expiration != nil {
		exp := rec.Expiration.UTC()
		row.ExpiresAt = &exp
	}
	return row
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("ANCHORSYNC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if err := utils.EnsureParentDir(dbPath); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// sqlite serialises writers; a single connection avoids SQLITE_BUSY under
	// concurrent watcher lookups.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Anchor{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CreateAnchor persists rec, assigning a fresh identifier when rec has none.
func (c *DBClient) CreateAnchor(rec models.CloudAnchorRecord) (models.CloudAnchorRecord, error) {
	if c == nil || c.DB == nil {
		return models.CloudAnchorRecord{}, errors.New(errDBClientNil)
	}

	if rec.ID == "" {
		rec.ID = utils.GenerateUUID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	row := anchorFromRecord(rec)
	if err := c.DB.Create(&row).Error; err != nil {
		return models.CloudAnchorRecord{}, fmt.Errorf("creating anchor: %w", err)
	}
	return row.toRecord(), nil
}

func (c *DBClient) GetAnchor(id string) (*models.CloudAnchorRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var row Anchor
	err := c.DB.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAnchorNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying anchor %s: %w", id, err)
	}
	rec := row.toRecord()
	return &rec, nil
}

// GetAnchorsByIDs returns the stored records among ids, keyed by identifier.
func (c *DBClient) GetAnchorsByIDs(ids []string) (map[string]models.CloudAnchorRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	result := make(map[string]models.CloudAnchorRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []Anchor
	if err := c.DB.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("batch querying anchors: %w", err)
	}
	for _, r := range rows {
		result[r.ID] = r.toRecord()
	}
	return result, nil
}

func (c *DBClient) DeleteAnchorByID(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&Anchor{})
		if res.Error != nil {
			return fmt.Errorf("deleting anchor %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrAnchorNotFound, id)
		}
		return nil
	})
}

func (c *DBClient) ListAnchors() ([]models.CloudAnchorRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []Anchor
	if err := c.DB.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing anchors: %w", err)
	}
	out := make([]models.CloudAnchorRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

func (c *DBClient) CountAnchors() (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var count int64
	if err := c.DB.Model(&Anchor{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting anchors: %w", err)
	}
	return count, nil
}

// PurgeExpired removes every anchor whose expiration is at or before now.
func (c *DBClient) PurgeExpired(now time.Time) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	res := c.DB.Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).Delete(&Anchor{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging expired anchors: %w", res.Error)
	}
	return res.RowsAffected, nil
}

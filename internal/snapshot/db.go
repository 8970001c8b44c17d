package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/holopos/pkg/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type record struct {
	Key       string    `gorm:"column:snapshot_key;primaryKey"`
	Payload   string    `gorm:"column:payload"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (record) TableName() string { return "offline_snapshots" }

type dbClient interface {
	DB() *gorm.DB
	Driver() string
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DBSnapshot keeps the document in one row of offline_snapshots.
type DBSnapshot struct {
	db  dbClient
	key string
}

// NewDBSnapshot binds a snapshot row to key.
func NewDBSnapshot(db dbClient, key string) (*DBSnapshot, error) {
	if db == nil {
		return nil, fmt.Errorf("db client required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("snapshot key required")
	}
	return &DBSnapshot{db: db, key: key}, nil
}

func (s *DBSnapshot) Read(ctx context.Context) ([]byte, error) {
	rec, err := s.load(s.db.DB().WithContext(ctx), false)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return []byte(rec.Payload), nil
}

// Update runs the read-modify-write inside one transaction. On Postgres the
// row is locked for the duration; SQLite serialises writers on its own. The
// row is seeded first so there is always something to lock, even on the
// very first write.
func (s *DBSnapshot) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.seed(tx); err != nil {
			return err
		}
		rec, err := s.load(tx, s.db.Driver() == config.DriverPostgres)
		if err != nil {
			return err
		}
		var current []byte
		if rec != nil {
			current = []byte(rec.Payload)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		row := record{Key: s.key, Payload: string(next), UpdatedAt: time.Now().UTC()}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "snapshot_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("writing snapshot %s: %w", s.key, err)
		}
		return nil
	})
}

// seed inserts an empty row for the key unless one exists.
func (s *DBSnapshot) seed(tx *gorm.DB) error {
	row := record{Key: s.key, Payload: "", UpdatedAt: time.Now().UTC()}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_key"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("seeding snapshot %s: %w", s.key, err)
	}
	return nil
}

// load returns nil for a missing row and for a seeded row never written.
func (s *DBSnapshot) load(tx *gorm.DB, forUpdate bool) (*record, error) {
	query := tx.Where("snapshot_key = ?", s.key)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec record
	err := query.Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", s.key, err)
	}
	if rec.Payload == "" {
		return nil, nil
	}
	return &rec, nil
}

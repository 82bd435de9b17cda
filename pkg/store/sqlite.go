package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/securepatrol-id/securepatrol-backend/pkg/config"
	"github.com/securepatrol-id/securepatrol-backend/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// partitionRow is the single-table schema backing the partitioned store.
type partitionRow struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Payload   []byte    `gorm:"column:payload;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (partitionRow) TableName() string {
	return "partitions"
}

// Client is the SQLite-backed Store for the on-device database.
type Client struct {
	conn     *gorm.DB
	maxBytes int
}

var _ Store = (*Client)(nil)

// Open boots the SQLite store using the provided configuration.
func Open(ctx context.Context, cfg config.StoreConfig, logg *logger.Logger) (*Client, error) {
	if cfg.SQLiteDSN == "" {
		return nil, fmt.Errorf("store DSN is required")
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(sqlite.Open(cfg.SQLiteDSN), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client := &Client{conn: conn, maxBytes: cfg.MaxPartitionBytes}

	if cfg.AutoMigrate {
		if err := conn.WithContext(ctx).AutoMigrate(&partitionRow{}); err != nil {
			return nil, fmt.Errorf("migrating partitions table: %w", err)
		}
	}

	if logg != nil {
		logg.Info(ctx, "partition store opened")
	}

	return client, nil
}

// Load reads the whole payload of a partition. A never-written partition
// yields a nil payload and no error.
func (c *Client) Load(ctx context.Context, partition Partition) ([]byte, error) {
	var row partitionRow
	err := c.conn.WithContext(ctx).First(&row, "key = ?", string(partition)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.Payload, nil
}

// Save overwrites the whole payload of a partition, enforcing the configured
// capacity ceiling.
func (c *Client) Save(ctx context.Context, partition Partition, payload []byte) error {
	if c.maxBytes > 0 && len(payload) > c.maxBytes {
		return fmt.Errorf("%w: %s payload %d bytes exceeds %d", ErrCapacityExceeded, partition, len(payload), c.maxBytes)
	}

	row := partitionRow{
		Key:       string(partition),
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	return c.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

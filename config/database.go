package config

import (
	"fmt"
	"time"

	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

const (
	maxConnectAttempts = 5
	connectRetryDelay  = 3 * time.Second
)

// InitDB opens the postgres connection, retrying while the database comes up,
// and runs AutoMigrate when DB_AUTO_MIGRATE is set
func InitDB(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{}
	if cfg.Env == "production" {
		gormCfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxConnectAttempts; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
		if err == nil {
			break
		}
		utils.LogError("Failed to connect to database (try %d/%d): %v", i+1, maxConnectAttempts, err)
		if i < maxConnectAttempts-1 {
			time.Sleep(connectRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if cfg.DBAutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	DB = db
	return db, nil
}

// AutoMigrate creates or updates the payments and orders tables
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Order{}, &models.Payment{}); err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}
	return nil
}

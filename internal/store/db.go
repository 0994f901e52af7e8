package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nvrd/internal/config"
)

// Open connects to Postgres and runs AutoMigrate for every entity in
// AllModels, mirroring the teacher's database.Initialize.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	var count int64
	if err := db.Model(&SystemSettings{}).Count(&count).Error; err == nil && count == 0 {
		db.Create(&SystemSettings{ID: 1, RetentionDays: 14, DiskFreeFloor: 0.05})
	}

	return db, nil
}

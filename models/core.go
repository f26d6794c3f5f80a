package models

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/GrainArc/RasterImport/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB 按配置打开数据库并迁移表结构
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}

	var dialector gorm.Dialector
	switch cfg.DBType {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		// 确保目录存在
		if dir := filepath.Dir(cfg.SQLite); dir != "" {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.SQLite + "?_busy_timeout=5000")
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.DBType != "postgres" {
		// sqlite 单写
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := migrateAllTables(db); err != nil {
		return nil, fmt.Errorf("migrate tables: %w", err)
	}
	log.Printf("database ready (%s)", cfg.DBType)

	DB = db
	return db, nil
}

// migrateAllTables 批量迁移所有表
func migrateAllTables(db *gorm.DB) error {
	models := []interface{}{
		&User{},
		&Experiment{},
		&RasterRecord{},
	}
	return db.AutoMigrate(models...)
}

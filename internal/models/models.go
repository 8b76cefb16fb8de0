package models

import (
	"fmt"
	"os"
	"path/filepath"

	"distill-go/internal/config"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 全局数据库实例
var DB *gorm.DB

// InitDB 初始化数据库并迁移运行台账表
func InitDB(cfg *config.Config) error {
	db, err := Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open 打开 sqlite 数据库，path 为 ":memory:" 时使用内存库
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent), // 使用静默模式
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// sqlite 单写者，串行化连接
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return db, nil
}

// AutoMigrate 自动迁移数据库表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Run{},
		&RunRecord{},
		&SkipEvent{},
	)
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

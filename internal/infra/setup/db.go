package setup

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 支持的数据库驱动
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// DBConfig 持久化后端的连接参数
type DBConfig struct {
	Driver   string
	DSN      string // 设置后忽略下面的分项配置
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// Enabled 没有 DSN 也没有 Host 时视为未配置持久化后端
func (c DBConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

// dsn 根据驱动构建连接字符串
func (c DBConfig) dsn() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	if c.User == "" {
		return "", fmt.Errorf("database user not set")
	}
	switch c.Driver {
	case DriverMySQL, "":
		port := c.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, port, c.Name), nil
	case DriverPostgres:
		port := c.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			c.Host, c.User, c.Password, c.Name, port), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// OpenDB 按驱动打开数据库连接并配置连接池
func OpenDB(cfg DBConfig) (*gorm.DB, error) {
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, fmt.Errorf("failed to build DSN: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logrus.WithField("driver", cfg.Driver).Info("Database connected")
	return db, nil
}

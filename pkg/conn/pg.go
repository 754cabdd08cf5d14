package conn

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultPostgresHost = "localhost"
	defaultPostgresPort = 5432
)

// Option defines connection options for the audit store's PostgreSQL.
type Option struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Client wraps the PostgreSQL connection pool backing the audit store.
type Client struct {
	db *gorm.DB
}

// New opens a connection pool. Query logging is silenced: audit inserts sit
// next to the execution hot path and gorm's default logger is chatty.
func New(option Option) (*Client, error) {
	db, err := gorm.Open(postgres.Open(option.dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) dsn() string {
	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	dsn := fmt.Sprintf("host=%s port=%d sslmode=disable", host, port)
	if opt.User != "" {
		dsn += " user=" + opt.User
	}
	if opt.Password != "" {
		dsn += " password=" + opt.Password
	}
	if opt.Database != "" {
		dsn += " dbname=" + opt.Database
	}
	return dsn
}

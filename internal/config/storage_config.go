package config

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StorageConfig interface {
	GetStoreDriver() string
	GetSQLitePath() string
	GetDatabaseURL() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

// Storage selects the credential store and the optional Redis used for token revocation.
type Storage struct {
	Driver        string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"./data/barbearia.db"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

var _ StorageConfig = Storage{}

func (s Storage) GetStoreDriver() string   { return s.Driver }
func (s Storage) GetSQLitePath() string    { return s.SQLitePath }
func (s Storage) GetDatabaseURL() string   { return s.DatabaseURL }
func (s Storage) GetRedisAddr() string     { return s.RedisAddr }
func (s Storage) GetRedisPassword() string { return s.RedisPassword }
func (s Storage) GetRedisDB() int          { return s.RedisDB }

func (s Storage) validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverMemory, DriverSQLite, DriverPostgres)),
		validation.Field(&s.RedisDB, validation.Min(0)),
	)
	if err != nil {
		return err
	}
	switch {
	case s.Driver == DriverSQLite && s.SQLitePath == "":
		return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
	case s.Driver == DriverPostgres && s.DatabaseURL == "":
		return fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}
	return nil
}

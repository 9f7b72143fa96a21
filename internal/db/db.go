package db

import (
	"fmt"

	glebsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Handle struct {
	DB     *gorm.DB
	Driver string
	DSN    string
}

// Open otwiera bazę wg configa. Domyślnie sqlite w czystym Go (bez cgo),
// ale na produkcji u klienta bywa mysql/postgres – stąd wybór sterownika.
func Open(driver, dsn string) (*Handle, error) {
	var dial gorm.Dialector
	switch driver {
	case "", "sqlite":
		dial = glebsqlite.Open(dsn)
	case "sqlite-cgo":
		dial = cgosqlite.Open(dsn)
	case "mysql":
		dial = mysql.Open(dsn)
	case "postgres":
		dial = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("nieznany db_driver: %q", driver)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		// Logger: logger.Default.LogMode(logger.Info), // włącz jeśli chcesz verbose SQL
	})
	if err != nil {
		return nil, err
	}
	return &Handle{DB: gdb, Driver: driver, DSN: dsn}, nil
}

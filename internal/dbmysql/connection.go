package dbmysql

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"blogchat/internal/config"
)

// NewMySQL returns a GORM DB instance connected to MySQL, migrated when
// MYSQL_AUTO_MIGRATE is on.
func NewMySQL(cnf *config.Config, log *slog.Logger) (*gorm.DB, func(), error) {
	dsn := cnf.DSN()

	log.Info("connecting to MySQL",
		"host", cnf.Database.Host, "port", cnf.Database.Port, "database", cnf.Database.DatabaseName)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cnf.Logging.Level)),
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("sql.DB error: %w", err)
	}
	sqlDB.SetMaxOpenConns(cnf.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cnf.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if cnf.Database.AutoMigrate {
		if err := Migrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		log.Info("database migration completed")
	}

	log.Info("connected to MySQL")

	cleanup := func() {
		if err := sqlDB.Close(); err != nil {
			log.Warn("closing MySQL", "error", err)
		}
	}
	return db, cleanup, nil
}

func gormLogLevel(level string) logger.LogLevel {
	if level == "debug" {
		return logger.Info
	}
	return logger.Warn
}

package dbmysql

import (
	"fmt"

	"gorm.io/gorm"
)

// Models lists every table owned by the messaging service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Conversation{},
		&Message{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

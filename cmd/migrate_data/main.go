package main

import (
	"log"

	"campaign-gateway/internal/config"
	"campaign-gateway/internal/database"
	"campaign-gateway/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Copies campaign data from the local SQLite file into PostgreSQL.
// Run once when promoting a single-node deployment to a shared database.
func main() {
	cfg := config.LoadConfig()

	sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to SQLite: %v", err)
	}
	log.Printf("Connected to SQLite at %s", cfg.DBPath)

	cfg.DBDriver = "postgres"
	pgDB, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	if err := database.Migrate(pgDB); err != nil {
		log.Fatalf("Failed to migrate destination schema: %v", err)
	}

	log.Println("Starting data migration...")

	migrateContacts(sqliteDB, pgDB)
	migrateTable(sqliteDB, pgDB, "messages", &[]models.Message{})
	migrateTable(sqliteDB, pgDB, "audio_assets", &[]models.AudioAsset{})

	log.Println("Data migration completed")
}

func migrateContacts(src, dst *gorm.DB) {
	var contacts []models.Contact
	if err := src.Find(&contacts).Error; err != nil {
		log.Printf("Error reading contacts from SQLite: %v", err)
		return
	}
	for i := range contacts {
		if err := dst.Save(&contacts[i]).Error; err != nil {
			log.Printf("Error writing contact %s: %v", contacts[i].Number, err)
		}
	}
	log.Printf("Migrated %d contacts", len(contacts))
}

func migrateTable(src, dst *gorm.DB, name string, rows interface{}) {
	log.Printf("Migrating table: %s", name)

	if err := src.Find(rows).Error; err != nil {
		log.Printf("Error reading %s from SQLite: %v", name, err)
		return
	}

	if err := dst.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 200).Error
	}); err != nil {
		log.Printf("Error writing %s to PostgreSQL: %v", name, err)
	}
}

package main

import (
	"log"

	"campaign-gateway/internal/config"
	"campaign-gateway/internal/database"
)

// Resets PostgreSQL ID sequences after cmd/migrate_data bulk-inserts rows
// with their original IDs.
func main() {
	cfg := config.LoadConfig()
	cfg.DBDriver = "postgres"

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}

	tables := []string{
		"messages",
		"audio_assets",
	}

	log.Println("Syncing PostgreSQL sequences...")

	for _, table := range tables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			log.Printf("Error syncing sequence for %s: %v", table, err)
			continue
		}
		log.Printf("Synced sequence for %s", table)
	}

	log.Println("Done")
}

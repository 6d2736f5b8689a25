package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			for _, table := range []string{"receipts", "callback_logs", "payments", "payment_intents", "users"} {
				if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
					log.Fatalf("failed to clear table %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), cfg.Security.BCryptCost)

		tenants := []struct {
			Email string
			Name  string
			Role  string
		}{
			{"aya.kouassi@mail.ci", "Aya Kouassi", "tenant"},
			{"moussa.traore@mail.ci", "Moussa Traore", "tenant"},
			{"agence.cocody@mail.ci", "Agence Cocody", "landlord"},
		}

		for _, t := range tenants {
			var exists int
			row := db.QueryRow("SELECT 1 FROM users WHERE email = $1", t.Email)
			if err := row.Scan(&exists); err == nil {
				fmt.Printf("user %s already exists, skipping\n", t.Email)
				continue
			}

			if _, err := db.Exec(
				"INSERT INTO users (email, name, role, password_hash, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, true, now(), now())",
				t.Email, t.Name, t.Role, string(hash)); err != nil {
				log.Fatalf("failed to insert user %s: %v", t.Email, err)
			}
			fmt.Printf("Seeded %s user: %s\n", t.Role, t.Email)
		}

		fmt.Println("Demo principals seeded successfully")
	},
}

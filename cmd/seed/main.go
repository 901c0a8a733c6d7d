// Command seed populates a development database with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/observability"
	"quill/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of authors to create")
	numPosts := flag.Int("posts", 100, "Number of posts to create")
	clean := flag.Bool("clean", false, "Delete existing data before seeding")
	randSeed := flag.Int64("seed", 0, "Random seed for reproducible data (0 = random)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.InitLogger(cfg.Env)
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if _, err := seed.Seed(context.Background(), db, seed.Options{
		NumUsers:   *numUsers,
		NumPosts:   *numPosts,
		Clean:      *clean,
		BcryptCost: cfg.BcryptCost,
		RandSeed:   *randSeed,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("All seeded users share the password: %s", seed.DefaultPassword)
}

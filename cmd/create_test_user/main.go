package main

import (
	"context"
	"flag"
	"log"
	"os"

	"reward_engine/internal/db"
	"reward_engine/internal/domain"
	"reward_engine/internal/repository"

	"github.com/google/uuid"
)

func main() {
	// expects DATABASE_URL env var
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	email := flag.String("email", "tester@example.com", "user email")
	name := flag.String("name", "Tester", "display name")
	zone := flag.String("tz", "UTC", "IANA timezone used for the daily reset")
	flag.Parse()

	pool := db.Connect(dsn, 2)
	defer pool.Close()

	repo := repository.NewUserRepository(pool)
	quotas := repository.NewQuotaRepository(pool)
	ctx := context.Background()

	u := &domain.User{
		ID:       uuid.New(),
		Email:    *email,
		Name:     *name,
		Timezone: zone,
	}
	if err := repo.Create(ctx, u); err != nil {
		log.Fatalf("create user failed: %v", err)
	}
	log.Printf("user created id=%s tz=%s\n", u.ID, *zone)

	// verify read
	u2, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		log.Fatalf("get by id failed: %v", err)
	}
	log.Printf("fetched user id=%s email=%s coins=%d created_at=%v\n", u2.ID, u2.Email, u2.Coins, u2.CreatedAt)

	q, err := quotas.GetOrCreate(ctx, domain.DefaultQuotaPolicy().Fresh(u2.ID))
	if err != nil {
		log.Fatalf("create quota failed: %v", err)
	}
	log.Printf("quota remaining=%d next_reward_in=%d\n", q.RemainingViews, q.NextRewardIn)
	log.Printf("use header X-User-ID: %s\n", u2.ID)
}

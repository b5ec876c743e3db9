package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to Postgres through the pgx stdlib driver, retrying the
// initial ping so the API can start alongside its database container.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	return OpenWithRetry(ctx, databaseURL, 5, 2*time.Second)
}

func OpenWithRetry(ctx context.Context, databaseURL string, attempts int, delay time.Duration) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			return db, nil
		}
		if i == attempts {
			break
		}
		log.Printf("store: ping attempt %d/%d failed: %v", i, attempts, lastErr)
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("ping db: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("ping db after %d attempts: %w", attempts, lastErr)
}

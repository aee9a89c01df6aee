package database

import (
	"context"
	"errors"
	"fmt"

	"singles-table-backend/pkg/models"
)

// SeedTables creates tables numbered 1..n when the store has none yet.
// It returns how many tables were created.
func SeedTables(ctx context.Context, db DatabaseInterface, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	count, err := db.CountTables(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	created := 0
	for i := 1; i <= n; i++ {
		t := &models.Table{Number: i}
		if err := db.CreateTable(ctx, t); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			return created, fmt.Errorf("seed table %d: %w", i, err)
		}
		created++
	}
	fmt.Printf("🪑 Seeded %d tables\n", created)
	return created, nil
}

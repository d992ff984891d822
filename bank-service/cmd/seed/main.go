/**
 * @description
 * Offline tool that creates ledger accounts. Secrets are hashed before they
 * reach the database, so this is the only supported way to open an account.
 *
 * Usage:
 *   go run ./bank-service/cmd/seed <account-no> <secret> <opening-balance>
 *
 * Example:
 *   go run ./bank-service/cmd/seed 9999999999999999 platform-secret 0
 */
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mehedi-4/LMS/bank-service/internal/app"
	"github.com/mehedi-4/LMS/bank-service/internal/store"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Println("Usage: seed <account-no> <secret> <opening-balance>")
		fmt.Println("Example: seed 1001 s3cret 100.00")
		os.Exit(1)
	}

	// Load environment variables from .env file if it exists
	_ = godotenv.Load("../.env")
	_ = godotenv.Load(".env")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	balance, err := decimal.NewFromString(os.Args[3])
	if err != nil {
		log.Fatalf("Invalid opening balance %q: %v", os.Args[3], err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbpool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbpool.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewService(store.NewPostgresLedger(dbpool), app.NewBcryptHasher(bcryptCost()), nil, "", quiet)

	account, err := service.SeedAccount(ctx, os.Args[1], os.Args[2], balance)
	if err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}

	fmt.Printf("Created account %s with balance %s\n", account.AccountNo, account.Balance.StringFixed(2))
}

func bcryptCost() int {
	cost, err := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	if err != nil {
		return 0
	}
	return cost
}

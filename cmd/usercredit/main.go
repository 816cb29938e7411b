package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leductu204/mit-img-banana-sub000/internal/adapter/repo"
	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
)

// usercredit adjusts a user's credit balance through the ledger, so every
// administrative change leaves an audit trail like any other transaction.
func main() {
	var (
		userFlag   string
		addFlag    int64
		resetFlag  int64
		reasonFlag string
	)

	flag.StringVar(&userFlag, "user", "", "user ID to adjust (UUID)")
	flag.Int64Var(&addFlag, "add", 0, "credits to add (may be negative)")
	flag.Int64Var(&resetFlag, "reset", -1, "set the balance to this exact value (>=0)")
	flag.StringVar(&reasonFlag, "reason", "manual adjustment", "reason recorded on the ledger entry")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if addFlag == 0 && resetFlag < 0 {
		exitWithError(errors.New("either -add or -reset must be provided"))
	}
	if addFlag != 0 && resetFlag >= 0 {
		exitWithError(errors.New("-add and -reset are mutually exclusive"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "usercredit")
	ledger := repo.NewCreditLedger(infra.NewSQLRunner(pool, logger))

	amount := addFlag
	txType := domain.CreditTxAdminAdd
	if resetFlag >= 0 {
		current, err := ledger.Balance(ctx, userID)
		if err != nil {
			exitWithError(fmt.Errorf("failed to load balance: %w", err))
		}
		amount = resetFlag - current
		txType = domain.CreditTxAdminReset
	}

	balance, err := ledger.Grant(ctx, userID, amount, txType, reasonFlag)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			exitWithError(fmt.Errorf("user %s not found", userID))
		}
		exitWithError(fmt.Errorf("failed to adjust credits: %w", err))
	}
	fmt.Printf("user %s balance is now %d\n", userID, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

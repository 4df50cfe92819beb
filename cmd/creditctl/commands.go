package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"illustrator/internal/bootstrap"
	"illustrator/internal/credits"
	"illustrator/internal/domain"
	"illustrator/internal/infra"
	"illustrator/internal/middleware"
)

func init() {
	rootCmd.AddCommand(grantCmd, balanceCmd, historyCmd, migrateCmd, tokenCmd)

	grantCmd.Flags().String("pool", string(domain.CreditPoolPaid), "Pool recorded on the transaction (paid or bonus)")
	grantCmd.Flags().String("reason", domain.ReasonPurchase, "Reason recorded on the transaction")
	grantCmd.Flags().String("ref", "", "External reference such as an order id")

	historyCmd.Flags().Int("limit", 20, "Maximum transactions to list (at most 100)")
	historyCmd.Flags().Int("offset", 0, "Transactions to skip")

	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}

var rootCmd = &cobra.Command{
	Use:           "creditctl",
	Short:         "Administer the credit ledger",
	Long:          `Grant credits, inspect balances and history, apply migrations and issue bearer tokens. Configuration is read from the same environment as the API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// env is what a command needs from the environment.
type env struct {
	cfg      *infra.Config
	ledger   *credits.Ledger
	accounts bootstrap.LedgerStore
	close    func()
}

// openEnv is replaced in tests.
var openEnv = func(ctx context.Context) (*env, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)
	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	ledger := credits.NewLedger(stores.Ledger, logger, credits.Options{
		DailyFreeCredits:    cfg.DailyFreeCredits,
		AnonymousDailyLimit: cfg.AnonymousDailyLimit,
	})
	return &env{cfg: cfg, ledger: ledger, accounts: stores.Ledger, close: stores.Close}, nil
}

func withEnv(run func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()
		return run(cmd, args, e)
	}
}

func accountArg(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("account id %q is not a UUID", raw)
	}
	return id.String(), nil
}

// ─── grant ──────────────────────────────────────────────────────────────────

var grantCmd = &cobra.Command{
	Use:   "grant ACCOUNT_ID AMOUNT",
	Short: "Add purchased or bonus credits to an account",
	Args:  cobra.ExactArgs(2),
	RunE:  withEnv(runGrant),
}

func runGrant(cmd *cobra.Command, args []string, e *env) error {
	accountID, err := accountArg(args[0])
	if err != nil {
		return err
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 {
		return fmt.Errorf("amount must be a positive integer")
	}
	pool, _ := cmd.Flags().GetString("pool")
	reason, _ := cmd.Flags().GetString("reason")
	ref, _ := cmd.Flags().GetString("ref")

	if err := e.accounts.EnsureAccount(cmd.Context(), accountID); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	bal, err := e.ledger.Grant(cmd.Context(), accountID, amount, domain.CreditPool(pool), reason, ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "granted %d to %s: free=%d paid=%d total=%d\n", amount, accountID, bal.Free, bal.Paid, bal.Total)
	return nil
}

// ─── balance ────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT_ID",
	Short: "Show an account balance, applying the daily reset when due",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(runBalance),
}

func runBalance(cmd *cobra.Command, args []string, e *env) error {
	accountID, err := accountArg(args[0])
	if err != nil {
		return err
	}
	bal, err := e.ledger.Balance(cmd.Context(), credits.Owner{ID: accountID, Authenticated: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "free=%d paid=%d total=%d\n", bal.Free, bal.Paid, bal.Total)
	return nil
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history ACCOUNT_ID",
	Short: "List ledger transactions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(runHistory),
}

func runHistory(cmd *cobra.Command, args []string, e *env) error {
	accountID, err := accountArg(args[0])
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	txs, err := e.ledger.History(cmd.Context(), accountID, limit, offset)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tAMOUNT\tPOOL\tREASON\tREFERENCE\tBALANCE")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%+d\t%s\t%s\t%s\t%d\n", tx.CreatedAt.Format(time.RFC3339), tx.Amount, tx.Pool, tx.Reason, tx.ReferenceID, tx.BalanceAfter)
	}
	return tw.Flush()
}

// ─── migrate ────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := infra.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.StoreDriver != infra.StoreDriverPostgres {
			return fmt.Errorf("migrate needs STORE_DRIVER=postgres")
		}
		if err := infra.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

// ─── token ──────────────────────────────────────────────────────────────────

var tokenCmd = &cobra.Command{
	Use:   "token ACCOUNT_ID",
	Short: "Create the account if needed and print a bearer token for it",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(runToken),
}

func runToken(cmd *cobra.Command, args []string, e *env) error {
	accountID, err := accountArg(args[0])
	if err != nil {
		return err
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if err := e.accounts.EnsureAccount(cmd.Context(), accountID); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	token, err := middleware.SignToken(e.cfg.JWTSecret, accountID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

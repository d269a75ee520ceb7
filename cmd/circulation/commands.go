package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
	"github.com/AntonStoeckl/circulation-engine-go/circulation/lifecycle"
	"github.com/AntonStoeckl/circulation-engine-go/internal/config"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitUsage    = 2
	exitRejected = 3

	shutdownTimeout = 10 * time.Second
	readTimeout     = 5 * time.Second
)

// errUsage marks command line mistakes.
var errUsage = errors.New("usage error")

type commandEnv struct {
	app    *app
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, env commandEnv, args []string) error
}

var commands = map[string]command{
	"migrate":           {"create the tables and indexes (sql drivers only)", runMigrate},
	"register-item":     {"put a new item with -copies into circulation", runRegisterItem},
	"revise-capacity":   {"change the total copies of an item", runReviseCapacity},
	"register-borrower": {"write a borrower record to the Redis directory", runRegisterBorrower},
	"borrow":            {"lend one copy of -item to -borrower", runBorrow},
	"return":            {"return a loan", runReturn},
	"cancel":            {"cancel an ACTIVE loan", runCancel},
	"sweep":             {"mark ACTIVE loans past their due date as OVERDUE, once", runSweep},
	"serve-sweeper":     {"sweep on -sweep-interval and serve /metrics on -metrics-addr", runServeSweeper},
	"audit":             {"check an item's counter against its outstanding loans", runAudit},
	"item":              {"show an item", runShowItem},
	"loan":              {"show a loan with its overdue status", runShowLoan},
	"loans":             {"list loans matching a filter", runListLoans},
	"counts":            {"count loans per state", runCounts},
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, rest, err := config.Load(args, getenv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		printUsage(stderr)
		return exitOK
	}

	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if len(rest) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		printUsage(stderr)

		return exitUsage
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitFailed
	}
	defer a.close()

	err = cmd.run(ctx, commandEnv{app: a, stdout: stdout, stderr: stderr}, rest[1:])

	return exitCode(err, stderr)
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	}

	_ = writeJSON(stderr, toErrorView(err))

	if errors.Is(err, circulation.ErrBusinessRuleViolation) || errors.Is(err, circulation.ErrNotFound) {
		return exitRejected
	}

	return exitFailed
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: circulation [global flags] <command> [command flags]")
	_, _ = fmt.Fprintln(w, "\ncommands:")

	for _, name := range slices.Sorted(maps.Keys(commands)) {
		_, _ = fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].summary)
	}
}

func newFlagSet(name string, env commandEnv) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)

	return fs
}

// parse joins flag errors with errUsage, except for -h.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}

		return errors.Join(errUsage, err)
	}

	if fs.NArg() > 0 {
		return errors.Join(errUsage, fmt.Errorf("unexpected arguments %v", fs.Args()))
	}

	return nil
}

func parseWithIDs(fs *flag.FlagSet, args []string, ids map[string]*uuidFlag) error {
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := requireIDs(ids); err != nil {
		return errors.Join(errUsage, err)
	}

	return nil
}

func runMigrate(ctx context.Context, env commandEnv, args []string) error {
	if err := parse(newFlagSet("migrate", env), args); err != nil {
		return err
	}

	m, ok := env.app.store.(migrator)
	if !ok {
		return errors.Join(errUsage, fmt.Errorf("driver %s has no schema", env.app.cfg.Driver))
	}

	if err := m.Migrate(ctx); err != nil {
		return err
	}

	return writeJSON(env.stdout, map[string]string{"status": "migrated"})
}

func runRegisterItem(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("register-item", env)
	itemID := &uuidFlag{}
	fs.Var(itemID, "item", "item ID")
	copies := fs.Int("copies", 1, "total copies")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"item": itemID}); err != nil {
		return err
	}

	item, err := env.app.controller.RegisterItem(ctx, itemID.id, *copies)
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, toItemView(item))
}

func runReviseCapacity(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("revise-capacity", env)
	itemID := &uuidFlag{}
	fs.Var(itemID, "item", "item ID")
	copies := fs.Int("copies", 0, "new total copies")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"item": itemID}); err != nil {
		return err
	}

	item, err := env.app.controller.ReviseCapacity(ctx, itemID.id, *copies)
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, toItemView(item))
}

func runRegisterBorrower(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("register-borrower", env)
	borrowerID := &uuidFlag{}
	fs.Var(borrowerID, "borrower", "borrower ID")
	name := fs.String("name", "", "display name")
	active := fs.Bool("active", true, "whether the borrower may borrow")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"borrower": borrowerID}); err != nil {
		return err
	}

	if env.app.redisDir == nil {
		return errors.Join(errUsage, errors.New("register-borrower needs -redis-addr"))
	}

	borrower := circulation.Borrower{ID: borrowerID.id, Active: *active, DisplayName: *name}
	if err := env.app.redisDir.Put(ctx, borrower); err != nil {
		return err
	}

	return writeJSON(env.stdout, borrower)
}

func runBorrow(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("borrow", env)
	itemID, borrowerID, due := &uuidFlag{}, &uuidFlag{}, &timeFlag{}
	fs.Var(itemID, "item", "item ID")
	fs.Var(borrowerID, "borrower", "borrower ID")
	fs.Var(due, "due", "due date (RFC 3339), default is 14 days from now")
	notes := fs.String("notes", "", "loan notes")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"item": itemID, "borrower": borrowerID}); err != nil {
		return err
	}

	loan, err := env.app.controller.CreateLoan(ctx, lifecycle.BorrowRequest{
		ItemID:     itemID.id,
		BorrowerID: borrowerID.id,
		DueDate:    due.t,
		Notes:      *notes,
	})
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, toLoanView(loan))
}

func runReturn(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("return", env)
	loanID := &uuidFlag{}
	fs.Var(loanID, "loan", "loan ID")
	notes := fs.String("notes", "", "condition notes appended to the loan")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"loan": loanID}); err != nil {
		return err
	}

	receipt, err := env.app.controller.ReturnLoan(ctx, loanID.id, *notes)
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, toReceiptView(receipt))
}

func runCancel(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("cancel", env)
	loanID := &uuidFlag{}
	fs.Var(loanID, "loan", "loan ID")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"loan": loanID}); err != nil {
		return err
	}

	loan, err := env.app.controller.CancelLoan(ctx, loanID.id)
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, toLoanView(loan))
}

func runSweep(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("sweep", env)
	asOf := &timeFlag{}
	fs.Var(asOf, "as-of", "sweep as of this time (RFC 3339), default is now")

	if err := parse(fs, args); err != nil {
		return err
	}

	now := asOf.t
	if now.IsZero() {
		now = time.Now().UTC()
	}

	transitioned, err := env.app.controller.SweepOverdue(ctx, now)
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, sweepView{AsOf: now, Transitioned: transitioned})
}

func runServeSweeper(ctx context.Context, env commandEnv, args []string) error {
	if err := parse(newFlagSet("serve-sweeper", env), args); err != nil {
		return err
	}

	a := env.app

	sweeper, err := lifecycle.NewSweeper(a.controller, a.cfg.SweepInterval, lifecycle.WithRunHook(func(transitioned int, runErr error) {
		if runErr != nil {
			a.logger.WarnContext(ctx, "sweep run failed", lifecycle.LogAttrError, runErr.Error(), lifecycle.LogAttrCount, transitioned)
			return
		}

		a.logger.InfoContext(ctx, "sweep run completed", lifecycle.LogAttrCount, transitioned)
	}))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})

	server := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: readTimeout}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if serveErr := server.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}

		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	a.logger.InfoContext(ctx, "sweeper started",
		"interval", a.cfg.SweepInterval.String(),
		"metrics_addr", a.cfg.MetricsAddr)

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}

	return err
}

func runAudit(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("audit", env)
	itemID := &uuidFlag{}
	fs.Var(itemID, "item", "item ID")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"item": itemID}); err != nil {
		return err
	}

	if err := env.app.controller.AuditItem(ctx, itemID.id); err != nil {
		return err
	}

	return writeJSON(env.stdout, map[string]string{"itemId": itemID.id.String(), "status": "consistent"})
}

func runShowItem(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("item", env)
	itemID := &uuidFlag{}
	fs.Var(itemID, "item", "item ID")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"item": itemID}); err != nil {
		return err
	}

	item, err := env.app.controller.GetItem(ctx, itemID.id)
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, toItemView(item))
}

func runShowLoan(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("loan", env)
	loanID := &uuidFlag{}
	fs.Var(loanID, "loan", "loan ID")

	if err := parseWithIDs(fs, args, map[string]*uuidFlag{"loan": loanID}); err != nil {
		return err
	}

	loan, err := env.app.controller.GetLoan(ctx, loanID.id)
	if err != nil {
		return err
	}

	overdue, err := env.app.controller.IsOverdue(ctx, loanID.id)
	if err != nil {
		return err
	}

	daysLate, err := env.app.controller.DaysLate(ctx, loanID.id)
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, loanStatusView{Loan: toLoanView(loan), Overdue: overdue, DaysLate: daysLate})
}

func runListLoans(ctx context.Context, env commandEnv, args []string) error {
	fs := newFlagSet("loans", env)
	borrowerID, itemID, dueBefore, states := &uuidFlag{}, &uuidFlag{}, &timeFlag{}, &statesFlag{}
	fs.Var(borrowerID, "borrower", "only loans of this borrower")
	fs.Var(itemID, "item", "only loans of this item")
	fs.Var(states, "state", "only loans in these states, comma separated ("+stateList()+")")
	fs.Var(dueBefore, "due-before", "only loans due strictly before this time (RFC 3339)")
	outstanding := fs.Bool("outstanding", false, "shortcut for -state ACTIVE,OVERDUE")
	returnedLate := fs.Bool("returned-late", false, "only loans returned after their due date")
	limit := fs.Int("limit", 0, "maximum number of loans, 0 is unlimited")

	if err := parse(fs, args); err != nil {
		return err
	}

	builder := circulation.BuildLoanFilter().InStates(states.states...).Limit(*limit)

	if borrowerID.set {
		builder.ForBorrower(borrowerID.id)
	}

	if itemID.set {
		builder.ForItem(itemID.id)
	}

	if !dueBefore.t.IsZero() {
		builder.DueBefore(dueBefore.t)
	}

	if *outstanding {
		builder.Outstanding()
	}

	if *returnedLate {
		builder.ReturnedLate()
	}

	loans, err := env.app.controller.FindLoans(ctx, builder.Finalize())
	if err != nil {
		return err
	}

	return writeJSON(env.stdout, toLoanViews(loans))
}

func runCounts(ctx context.Context, env commandEnv, args []string) error {
	if err := parse(newFlagSet("counts", env), args); err != nil {
		return err
	}

	counts, err := env.app.controller.CountLoansByState(ctx)
	if err != nil {
		return err
	}

	view := make(map[string]int, len(counts))
	for state, n := range counts {
		view[state.String()] = n
	}

	return writeJSON(env.stdout, view)
}

func stateList() string {
	states := circulation.AllLoanStates()
	names := make([]string, 0, len(states))

	for _, state := range states {
		names = append(names, state.String())
	}

	return strings.Join(names, ", ")
}

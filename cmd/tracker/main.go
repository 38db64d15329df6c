// Package main is the tracker job entry point. One invocation performs one
// batch run, or one operator action (summary, health check, dead-letter
// inspection) selected by flags, and exits with a status the surrounding
// scheduler can alert on.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"token-call-tracker/internal/config"
	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/fetcher"
	"token-call-tracker/internal/logging"
	"token-call-tracker/internal/observability"
	"token-call-tracker/internal/orchestrator"
	"token-call-tracker/internal/reporting"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // a token failed or a health probe failed
	exitConfig = 2 // configuration or startup error
)

// modeFlags select what one invocation does. A plain run is the default.
type modeFlags struct {
	summary         bool
	format          string
	healthCheck     bool
	chain           string
	showDeadLetter  bool
	clearDeadLetter bool
	replay          bool
	useMemory       bool

	transition *orchestrator.TransitionRequest
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("tracker", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)

	var mode modeFlags
	fs.BoolVar(&mode.summary, "summary", false, "Print the performance report without updating anything")
	fs.StringVar(&mode.format, "format", "markdown", "Report format: markdown or csv")
	fs.BoolVar(&mode.healthCheck, "health-check", false, "Probe storage and every provider, then exit")
	fs.StringVar(&mode.chain, "chain", string(domain.ChainSolana), "Chain whose native token the health check probes")
	fs.BoolVar(&mode.showDeadLetter, "show-dead-letter", false, "List dead-letter entries")
	fs.BoolVar(&mode.clearDeadLetter, "clear-dead-letter", false, "Remove all dead-letter entries")
	fs.BoolVar(&mode.replay, "replay-dead-letter", false, "Re-run the update for every dead-letter entry")
	fs.BoolVar(&mode.useMemory, "use-memory", false, "Use in-memory storage (nothing persists)")
	transitionID := fs.Int64("transition", 0, "Record a decision change for this position ID, then exit")
	decision := fs.String("decision", "", "New decision for --transition: TRADE, PASS or CLOSED")
	entryPrice := fs.Float64("entry-price", 0, "Entry price for --transition to TRADE")
	exitPrice := fs.Float64("exit-price", 0, "Exit price for --transition to CLOSED")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}
	if mode.useMemory {
		_ = fs.Set("db", "memory")
	}
	if fs.Changed("transition") {
		req, err := transitionRequest(*transitionID, *decision, fs, *entryPrice, *exitPrice)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitConfig
		}
		mode.transition = req
	}
	if mode.format != "markdown" && mode.format != "csv" {
		fmt.Fprintf(stderr, "Error: unknown --format %q\n", mode.format)
		return exitConfig
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfig
	}
	defer logging.Sync(logger)

	// Create context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return exitConfig
	}
	defer a.Close()

	code := a.dispatch(ctx, mode, stdout)
	a.pushMetrics()
	return code
}

func (a *app) dispatch(ctx context.Context, mode modeFlags, out io.Writer) int {
	switch {
	case mode.transition != nil:
		return a.transition(ctx, *mode.transition, out)
	case mode.healthCheck:
		return a.healthCheck(ctx, domain.ParseChain(mode.chain), out)
	case mode.showDeadLetter:
		entries, err := a.queue.List(ctx)
		if err != nil {
			a.logger.Error("list dead letters failed", zap.Error(err))
			return exitFailed
		}
		fmt.Fprint(out, reporting.RenderDeadLetters(entries))
		return exitOK
	case mode.clearDeadLetter:
		n, err := a.queue.Clear(ctx)
		if err != nil {
			a.logger.Error("clear dead letters failed", zap.Error(err))
			return exitFailed
		}
		fmt.Fprintf(out, "Cleared %d dead-letter entries\n", n)
		return exitOK
	case mode.replay:
		summary, err := a.orch.Replay(ctx)
		if err != nil {
			a.logger.Error("replay failed", zap.Error(err))
			return exitFailed
		}
		return a.finishRun(ctx, summary, mode.format, out)
	case mode.summary:
		if err := a.printReport(ctx, nil, mode.format, out); err != nil {
			a.logger.Error("report failed", zap.Error(err))
			return exitFailed
		}
		return exitOK
	default:
		summary, err := a.orch.Run(ctx, orchestrator.RunOptions{
			Limit:       a.cfg.Tracker.Limit,
			MinAgeHours: a.cfg.Tracker.MinAgeHours,
		})
		if err != nil {
			a.logger.Error("run failed", zap.Error(err))
			return exitConfig
		}
		return a.finishRun(ctx, summary, mode.format, out)
	}
}

// finishRun prints the run summary followed by the report and maps the
// outcome to an exit code.
func (a *app) finishRun(ctx context.Context, summary *orchestrator.RunSummary, format string, out io.Writer) int {
	totals := &reporting.RunTotals{
		RunID:      summary.RunID,
		Mode:       summary.Mode,
		Dispatched: summary.Dispatched,
		Updated:    summary.Updated,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Cancelled:  summary.Cancelled,
		Duration:   summary.Duration,
	}
	if err := a.printReport(ctx, totals, format, out); err != nil {
		a.logger.Error("report failed", zap.Error(err))
	}
	if !summary.OK() {
		return exitFailed
	}
	return exitOK
}

func (a *app) printReport(ctx context.Context, totals *reporting.RunTotals, format string, out io.Writer) error {
	report, err := reporting.NewGenerator(a.repo.Stores(), a.deadLetters).Generate(ctx)
	if err != nil {
		return err
	}
	report.Run = totals

	if format == "csv" {
		fmt.Fprint(out, reporting.RenderCSV(report.Sources))
		return nil
	}
	fmt.Fprint(out, reporting.RenderMarkdown(report))
	return nil
}

func (a *app) healthCheck(ctx context.Context, chain domain.Chain, out io.Writer) int {
	results, err := a.orch.HealthCheck(ctx, chain)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSTATUS\tLATENCY\tERROR")
	for _, r := range results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Provider, r.Status, r.Latency.Round(time.Millisecond), msg)
	}
	_ = tw.Flush()

	if err != nil {
		if !errors.Is(err, fetcher.ErrUnhealthy) {
			a.logger.Error("health check failed", zap.Error(err))
		} else {
			fmt.Fprintf(out, "UNHEALTHY: %v\n", err)
		}
		return exitFailed
	}
	fmt.Fprintln(out, "HEALTHY")
	return exitOK
}

// transitionRequest builds a request from the --transition flags. Prices
// are only passed when their flag was set.
func transitionRequest(id int64, decision string, fs *pflag.FlagSet, entry, exit float64) (*orchestrator.TransitionRequest, error) {
	if id <= 0 {
		return nil, fmt.Errorf("--transition needs a positive position ID")
	}
	d := domain.Decision(strings.ToUpper(strings.TrimSpace(decision)))
	if !d.IsValid() {
		return nil, fmt.Errorf("--decision %q is not one of TRADE, PASS, CLOSED", decision)
	}

	req := &orchestrator.TransitionRequest{PositionID: id, Decision: d}
	if fs.Changed("entry-price") {
		req.EntryPrice = &entry
	}
	if fs.Changed("exit-price") {
		req.ExitPrice = &exit
	}
	return req, nil
}

func (a *app) transition(ctx context.Context, req orchestrator.TransitionRequest, out io.Writer) int {
	pos, err := a.orch.Transition(ctx, req)
	if err != nil {
		a.logger.Error("transition failed", zap.Int64("position_id", req.PositionID), zap.Error(err))
		return exitFailed
	}
	fmt.Fprintf(out, "Position %d (%s) is now %s\n", pos.ID, pos.Token, pos.Decision)
	return exitOK
}

// pushMetrics sends the run's metrics to the Pushgateway, if configured.
// A failed push never changes the exit code.
func (a *app) pushMetrics() {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := observability.Push(ctx, url, a.cfg.Metrics.Job); err != nil {
		a.logger.Warn("metrics push failed", zap.Error(err))
	}
}

// triggerctl inspects and operates on triggers directly against the store.
//
//	triggerctl show   --id 5 [--id 9 ...]
//	triggerctl fire   --id 5 [--now "2026-01-01 09:00"]
//	triggerctl cancel --id 5
//	triggerctl delete --id 5
//	triggerctl token  --sub ops [--ttl 24h]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ErlanBelekov/triggerd/config"
	"github.com/ErlanBelekov/triggerd/internal/bootstrap"
	"github.com/ErlanBelekov/triggerd/internal/domain"
	ctxlog "github.com/ErlanBelekov/triggerd/internal/log"
	"github.com/ErlanBelekov/triggerd/internal/schedule"
	"github.com/ErlanBelekov/triggerd/internal/scheduler"
	"github.com/ErlanBelekov/triggerd/internal/triggerctl"
	"github.com/ErlanBelekov/triggerd/internal/usecase"
)

const usage = `usage: triggerctl <command> [flags]

commands:
  show    print triggers and their recent events
  fire    fire triggers now, regardless of schedule
  cancel  cancel triggers
  delete  delete triggers and their events
  token   issue an API bearer token
`

// idList collects a repeatable --id flag.
type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }

func (l *idList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "show":
		err = cmdShow(ctx, args[1:], stdout, stderr)
	case "fire":
		err = cmdFire(ctx, args[1:], stdout, stderr)
	case "cancel":
		err = cmdCancel(ctx, args[1:], stdout, stderr)
	case "delete":
		err = cmdDelete(ctx, args[1:], stdout, stderr)
	case "token":
		err = cmdToken(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case triggerctl.IsUsage(err):
		fmt.Fprintf(stderr, "Usage Exception: %s\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *idList) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	ids := &idList{}
	fs.Var(ids, "id", "select a trigger by ID (repeatable)")
	return fs, ids
}

type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *bootstrap.Store
}

func open(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// Operator output goes to stdout; the default info level would drown it.
	level := cfg.SlogLevel()
	if cfg.LogLevel == "info" {
		level = slog.LevelWarn
	}
	logger := ctxlog.New(cfg.Env, level)

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &session{cfg: cfg, logger: logger, store: store}, nil
}

func cmdShow(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, ids := newFlagSet("show", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	triggers, err := triggerctl.LoadTriggers(ctx, e.store.Repo, *ids, true)
	if err != nil {
		return err
	}
	for i, t := range triggers {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		printTrigger(stdout, t)
	}
	return nil
}

func printTrigger(w io.Writer, t *triggerctl.LoadedTrigger) {
	fmt.Fprintf(w, "%s\n", triggerctl.DescribeTrigger(t.Trigger))
	fmt.Fprintf(w, "  schedule:  %s\n", describeSchedule(t.Schedule))
	fmt.Fprintf(w, "  action:    %s %s\n", t.Action.Kind, t.Action.Payload)
	fmt.Fprintf(w, "  version:   %d\n", t.Version)
	fmt.Fprintf(w, "  last fire: %s\n", formatTime(t.LastFiredAt))
	fmt.Fprintf(w, "  next fire: %s\n", formatTime(t.NextFireAt))
	if t.ClaimedBy != nil {
		fmt.Fprintf(w, "  claimed:   by %s at %s\n", *t.ClaimedBy, formatTime(t.ClaimedAt))
	}
	if t.ConsecutiveFailures > 0 {
		fmt.Fprintf(w, "  failures:  %d consecutive\n", t.ConsecutiveFailures)
	}
	if t.CancelledAt != nil {
		fmt.Fprintf(w, "  cancelled: %s\n", formatTime(t.CancelledAt))
	}

	if len(t.Events) == 0 {
		fmt.Fprintln(w, "  events:    none")
		return
	}
	fmt.Fprintln(w, "  events:")
	for _, ev := range t.Events {
		detail := ""
		if ev.Detail != nil {
			detail = " " + *ev.Detail
		}
		fmt.Fprintf(w, "    #%d %s %-10s %5dms %s%s\n",
			ev.ID, ev.FiredAt.Format(time.RFC3339), ev.Outcome, ev.DurationMS, ev.EvaluatorID, detail)
	}
}

func describeSchedule(s domain.Schedule) string {
	switch s.Kind {
	case domain.ScheduleInterval:
		return fmt.Sprintf("every %s", s.Interval())
	case domain.ScheduleCron:
		if s.Timezone != "" {
			return fmt.Sprintf("cron %q in %s", s.CronExpr, s.Timezone)
		}
		return fmt.Sprintf("cron %q", s.CronExpr)
	case domain.ScheduleOnce:
		return fmt.Sprintf("once at %s", formatTime(s.FireAt))
	default:
		return string(s.Kind)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func cmdFire(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, ids := newFlagSet("fire", stderr)
	nowFlag := fs.String("now", "", "fire as though the current time were this (e.g. \"2026-01-01 09:00\", \"-1h\")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	firedAt, err := triggerctl.ParseTime(*nowFlag, time.Now())
	if err != nil {
		return err
	}

	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	triggers, err := triggerctl.LoadTriggers(ctx, e.store.Repo, *ids, false)
	if err != nil {
		return err
	}

	actions, err := bootstrap.NewActions(e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer actions.Close()

	policy, err := schedule.ParseIntervalPolicy(e.cfg.IntervalPolicy)
	if err != nil {
		return err
	}
	d := scheduler.NewDispatcher(e.store.Repo, schedule.NewEvaluator(policy), actions.Registry, e.logger, scheduler.Config{
		ClaimTimeout: e.cfg.ClaimTimeout(),
		Backoff:      scheduler.Backoff{Base: e.cfg.BackoffBase(), Max: e.cfg.BackoffMax()},
	})

	for _, t := range triggers {
		at := time.Now()
		if firedAt != nil {
			at = *firedAt
		}
		fmt.Fprintf(stdout, "Executing %s...\n", triggerctl.DescribeTrigger(t.Trigger))
		out, err := d.FireNow(ctx, t.ID, at)
		if err != nil {
			return err
		}
		if out.Detail != "" {
			fmt.Fprintf(stdout, "  %s: %s\n", out.Status, out.Detail)
		} else {
			fmt.Fprintf(stdout, "  %s\n", out.Status)
		}
	}
	return nil
}

func cmdCancel(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, ids := newFlagSet("cancel", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	triggers, err := triggerctl.LoadTriggers(ctx, e.store.Repo, *ids, false)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if _, err := e.store.Repo.Cancel(ctx, t.ID, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Cancelled %s.\n", triggerctl.DescribeTrigger(t.Trigger))
	}
	return nil
}

func cmdDelete(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, ids := newFlagSet("delete", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := open(ctx)
	if err != nil {
		return err
	}
	defer e.store.Close()

	triggers, err := triggerctl.LoadTriggers(ctx, e.store.Repo, *ids, false)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := e.store.Repo.Delete(ctx, t.ID); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted %s.\n", triggerctl.DescribeTrigger(t.Trigger))
	}
	return nil
}

func cmdToken(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sub := fs.String("sub", "", "token subject, recorded in API access logs")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	token, err := usecase.NewAuthUsecase([]byte(cfg.JWTSecret)).IssueToken(*sub, *ttl)
	if errors.Is(err, usecase.ErrEmptySubject) {
		return triggerctl.Usagef("Use --sub to name the token subject.")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

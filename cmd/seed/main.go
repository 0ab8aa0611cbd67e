// seed creates a set of demo triggers in the configured store.
// Run: STORE_DRIVER=sqlite go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ErlanBelekov/triggerd/config"
	"github.com/ErlanBelekov/triggerd/internal/bootstrap"
	"github.com/ErlanBelekov/triggerd/internal/domain"
	ctxlog "github.com/ErlanBelekov/triggerd/internal/log"
	"github.com/ErlanBelekov/triggerd/internal/schedule"
	"github.com/ErlanBelekov/triggerd/internal/usecase"
)

type seedSpec struct {
	note     string
	schedule domain.Schedule
	kind     string
	payload  string
}

func seeds(now time.Time) []seedSpec {
	soon := now.Add(time.Minute).Truncate(time.Second)
	return []seedSpec{
		// Happy path
		{"log every 10s", domain.Schedule{Kind: domain.ScheduleInterval, IntervalSeconds: 10}, "log", `{"msg":"tick"}`},
		{"log every minute (cron)", domain.Schedule{Kind: domain.ScheduleCron, CronExpr: "* * * * *"}, "log", `{"msg":"cron tick"}`},
		{"log once in a minute", domain.Schedule{Kind: domain.ScheduleOnce, FireAt: &soon}, "log", `{"msg":"one shot"}`},
		{"webhook POST every 30s", domain.Schedule{Kind: domain.ScheduleInterval, IntervalSeconds: 30}, "webhook", `{"url":"https://httpbin.org/post","body":"{\"seed\":true}"}`},
		{"webhook GET on the last day of the month", domain.Schedule{Kind: domain.ScheduleCron, CronExpr: "0 9 L * *", Timezone: "Europe/Berlin"}, "webhook", `{"url":"https://httpbin.org/get","method":"GET"}`},

		// Failure: 4xx keeps the cadence
		{"webhook 404 every 30s", domain.Schedule{Kind: domain.ScheduleInterval, IntervalSeconds: 30}, "webhook", `{"url":"https://httpbin.org/status/404"}`},

		// Retry soon: 5xx backs off and eventually opens the breaker
		{"webhook 503 every 30s", domain.Schedule{Kind: domain.ScheduleInterval, IntervalSeconds: 30}, "webhook", `{"url":"https://httpbin.org/status/503"}`},
	}
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := ctxlog.New(cfg.Env, cfg.SlogLevel())

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	actions, err := bootstrap.NewActions(cfg, logger)
	if err != nil {
		store.Close()
		log.Fatalf("actions: %v", err)
	}
	defer actions.Close()

	policy, err := schedule.ParseIntervalPolicy(cfg.IntervalPolicy)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	uc := usecase.NewTriggerUsecase(store.Repo, schedule.NewEvaluator(policy), actions.Registry)

	fmt.Println("Seed complete")
	fmt.Println()
	for _, s := range seeds(time.Now()) {
		t, err := uc.CreateTrigger(ctx, usecase.CreateTriggerInput{
			Schedule: s.schedule,
			Action:   domain.Action{Kind: s.kind, Payload: json.RawMessage(s.payload)},
		})
		if err != nil {
			log.Printf("create %q: %v", s.note, err)
			continue
		}
		fmt.Printf("  %-12s %-45s next %s\n", t.Describe(), s.note, t.NextFireAt.Format(time.RFC3339))
	}

	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: run the scheduler against the same store:")
	fmt.Println()
	fmt.Println("    go run ./cmd/scheduler")
	fmt.Println()
	fmt.Println("  Step 2: inspect a trigger and its events:")
	fmt.Println()
	fmt.Println("    go run ./cmd/triggerctl show --id 1 --id 6")
	fmt.Println()
	fmt.Println("  Step 3: or through the API:")
	fmt.Println()
	fmt.Println("    export JWT=$(go run ./cmd/triggerctl token --sub seed)")
	fmt.Println("    curl -s http://localhost:8080/triggers/1/events -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    log / webhook 2xx   →  success, next fire on cadence")
	fmt.Println("    webhook 404         →  failure, cadence kept, failures count up")
	fmt.Println("    webhook 503         →  retry_soon with exponential backoff")
}

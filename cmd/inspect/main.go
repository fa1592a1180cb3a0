package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/app"
	"github.com/Blackthor84/WorkVouch-sub000/internal/audit"
	"github.com/Blackthor84/WorkVouch-sub000/internal/eventlog"
	"github.com/Blackthor84/WorkVouch-sub000/internal/sandbox"
)

// #region main

func main() {
	configPath := flag.String("config", envOr("TRUSTSIM_CONFIG", "trustsim.yaml"), "path to YAML config")
	stream := flag.String("stream", "", "show one action-log stream")
	last := flag.Int("last", 20, "show N most recent streams")
	scores := flag.String("scores", "", "show every reputation row in a sandbox scope")
	events := flag.String("events", "", "show system audit events for a scenario id")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	os.Exit(run(*configPath, func(ctx context.Context, env *app.Env) error {
		switch {
		case *stream != "":
			return runStreamMode(ctx, env.Journal, *stream, *jsonOut)
		case *scores != "":
			return runScoresMode(ctx, env.Sandbox, *scores, *jsonOut)
		case *events != "":
			return runEventsMode(ctx, env.Sink, *events, *jsonOut)
		}
		return runListMode(ctx, env.Journal, *last, *jsonOut)
	}))
}

// run opens the local sandbox with its journal, whatever the config says
// about remote execution; inspect reads storage directly.
func run(configPath string, fn func(context.Context, *app.Env) error) int {
	ctx := context.Background()
	cfg, shutdown, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	defer shutdown(ctx)
	cfg.Remote.Addr = ""
	cfg.Sandbox.Journal = true

	env, err := app.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 1
	}
	defer env.Close()

	if err := fn(ctx, env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// #endregion main

// #region list-mode

type streamRow struct {
	Stream  string `json:"stream"`
	Records int    `json:"records"`
	Last    string `json:"last"`
}

func runListMode(ctx context.Context, journal *eventlog.Store, last int, jsonOut bool) error {
	infos, err := journal.Streams(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(os.Stderr, "no streams found")
		return nil
	}
	if last > 0 && len(infos) > last {
		infos = infos[:last]
	}
	rows := make([]streamRow, len(infos))
	for i, info := range infos {
		rows[i] = streamRow{Stream: info.Stream, Records: info.Records, Last: info.Last.Format("2006-01-02T15:04:05Z")}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-48s  %7s  %s\n", "Stream", "Records", "Last")
	fmt.Printf("%-48s+-%7s+-%s\n", strings.Repeat("-", 48), "-------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-48s  %7d  %s\n", r.Stream, r.Records, r.Last)
	}
	fmt.Printf("\n%d streams\n", len(rows))
	return nil
}

// #endregion list-mode

// #region stream-mode

func runStreamMode(ctx context.Context, journal *eventlog.Store, stream string, jsonOut bool) error {
	recs, err := journal.Load(ctx, stream)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("stream %q has no records", stream)
	}
	report := eventlog.Verify(recs)
	if jsonOut {
		return printJSON(struct {
			Records []eventlog.Record `json:"records"`
			Report  eventlog.Report   `json:"report"`
		}{recs, report})
	}

	fmt.Printf("%-4s  %-24s  %-8s  %-12s  %-12s  %s\n", "#", "Action", "Engine", "Payload", "State", "By")
	fmt.Printf("%-4s+-%-24s+-%-8s+-%-12s+-%-12s+-%s\n", "----", strings.Repeat("-", 24), "--------", "------------", "------------", "--------")
	for i, r := range recs {
		by := "system"
		if r.ActingUser != nil {
			by = *r.ActingUser
		}
		fmt.Printf("%-4d  %-24s  %-8s  %-12s  %-12s  %s\n",
			i, r.ActionType, r.EngineVersion, shortID(r.PayloadFingerprint), shortID(r.StateFingerprint), by)
	}
	fmt.Printf("\nVerify: %s (%d steps", report.Status, report.Steps)
	if report.DivergedAt >= 0 {
		fmt.Printf(", diverged at %d", report.DivergedAt)
	}
	fmt.Println(")")
	return nil
}

// #endregion stream-mode

// #region scores-mode

type scoreRow struct {
	ActorID    string  `json:"actor_id"`
	Trust      float64 `json:"trust"`
	Profile    float64 `json:"profile"`
	Confidence float64 `json:"confidence"`
	Decision   string  `json:"decision"`
	Version    int     `json:"version"`
}

func runScoresMode(ctx context.Context, box *sandbox.Sandbox, scope string, jsonOut bool) error {
	scores, err := box.Scores(ctx, scope)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]scoreRow, 0, len(ids))
	for _, id := range ids {
		rep, ok, err := box.Reputation(ctx, scope, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		rows = append(rows, scoreRow{
			ActorID: rep.ActorID, Trust: rep.Trust, Profile: rep.Profile,
			Confidence: rep.Confidence, Decision: rep.Decision, Version: rep.Version,
		})
	}
	if jsonOut {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stderr, "no actors in scope %s\n", scope)
		return nil
	}

	fmt.Printf("%-24s  %8s  %8s  %10s  %-10s  %s\n", "Actor", "Trust", "Profile", "Confidence", "Decision", "Version")
	fmt.Printf("%-24s+-%8s+-%8s+-%10s+-%-10s+-%s\n", strings.Repeat("-", 24), "--------", "--------", "----------", "----------", "-------")
	for _, r := range rows {
		fmt.Printf("%-24s  %8.2f  %8.2f  %10.2f  %-10s  %d\n", r.ActorID, r.Trust, r.Profile, r.Confidence, r.Decision, r.Version)
	}
	return nil
}

// #endregion scores-mode

// #region events-mode

func runEventsMode(ctx context.Context, reader audit.Reader, scenarioID string, jsonOut bool) error {
	events, err := reader.SystemEvents(ctx, scenarioID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(events)
	}
	if len(events) == 0 {
		fmt.Fprintf(os.Stderr, "no events for scenario %s\n", scenarioID)
		return nil
	}

	fmt.Printf("%-22s  %-16s  %-18s  %-14s  %s\n", "Type", "Step", "Action", "Actor", "Flags")
	fmt.Printf("%-22s+-%-16s+-%-18s+-%-14s+-%s\n", strings.Repeat("-", 22), strings.Repeat("-", 16), strings.Repeat("-", 18), strings.Repeat("-", 14), "-----")
	for _, e := range events {
		fmt.Printf("%-22s  %-16s  %-18s  %-14s  %s\n", e.Type, e.StepID, e.Action, e.ActorRef, strings.Join(e.Flags, ","))
	}
	fmt.Printf("\n%d events, %d abuse flags\n", len(events), audit.CountFlag(events, action.FlagAbuseSignal))
	return nil
}

// #endregion events-mode

// #region helpers

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/Blackthor84/WorkVouch-sub000/internal/app"
	"github.com/Blackthor84/WorkVouch-sub000/internal/config"
	"github.com/Blackthor84/WorkVouch-sub000/internal/fuzz"
)

// #region main

func main() {
	configPath := flag.String("config", envOr("TRUSTSIM_CONFIG", "trustsim.yaml"), "path to YAML config")
	attack := flag.String("attack", "", "attack archetype: "+attackList())
	seed := flag.Uint("seed", 1, "generator seed")
	count := flag.Int("count", 1, "number of consecutive seeds to run")
	ring := flag.Bool("boost-ring", false, "run the built-in three-actor boost ring")
	list := flag.Bool("list", false, "list recent runs")
	limit := flag.Int("limit", 20, "runs to list")
	get := flag.String("get", "", "print one run with its snapshots")
	printDoc := flag.Bool("print", false, "print the generated document instead of running it")
	flag.Parse()

	modes := 0
	for _, on := range []bool{*attack != "", *ring, *list, *get != ""} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "usage: fuzz --attack boost_rings [--seed N] [--count N] [--print]")
		fmt.Fprintln(os.Stderr, "       fuzz --boost-ring")
		fmt.Fprintln(os.Stderr, "       fuzz --list [--limit N]")
		fmt.Fprintln(os.Stderr, "       fuzz --get RUN_ID")
		os.Exit(2)
	}
	seeds, err := seedRange(*seed, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	os.Exit(run(*configPath, func(ctx context.Context, cfg *config.Config) int {
		if *printDoc && *attack != "" {
			return printGenerated(fuzz.AttackType(*attack), cfg.Fuzz, seeds[0])
		}
		env, err := app.Open(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open: %v\n", err)
			return 2
		}
		defer env.Close()

		switch {
		case *list:
			return listRuns(ctx, env.Runs, *limit)
		case *get != "":
			return showRun(ctx, env.Runs, *get)
		case *ring:
			return runAll(ctx, env.Fuzzer(), []fuzz.Request{{Doc: fuzz.BoostRingDoc(), Seed: seeds[0]}})
		}
		reqs := make([]fuzz.Request, len(seeds))
		for i, s := range seeds {
			reqs[i] = fuzz.Request{Attack: fuzz.AttackType(*attack), Bounds: cfg.Fuzz, Seed: s}
		}
		return runAll(ctx, env.Fuzzer(), reqs)
	}))
}

// run loads config and keeps telemetry up for the duration of fn.
func run(configPath string, fn func(context.Context, *config.Config) int) int {
	ctx := context.Background()
	cfg, shutdown, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	defer shutdown(ctx)
	return fn(ctx, cfg)
}

// seedRange expands --seed and --count into consecutive generator seeds.
// Every seed must fit in 32 bits.
func seedRange(seed uint, count int) ([]uint32, error) {
	if count < 1 {
		return nil, fmt.Errorf("--count must be at least 1, got %d", count)
	}
	if uint64(seed)+uint64(count-1) > math.MaxUint32 {
		return nil, fmt.Errorf("--seed %d with --count %d exceeds the 32-bit seed range", seed, count)
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = uint32(seed) + uint32(i)
	}
	return out, nil
}

// #endregion main

// #region run

// runAll returns 1 when any run fails or any invariant does not hold.
func runAll(ctx context.Context, r *fuzz.Runner, reqs []fuzz.Request) int {
	printHeader()
	exit := 0
	for _, req := range reqs {
		rec, err := r.Run(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed %d: %v\n", req.Seed, err)
			exit = 2
			if rec.ID == "" {
				continue
			}
		}
		printRow(rec)
		if rec.Status != fuzz.StatusCompleted || !rec.Summary.Passed {
			exit = max(exit, 1)
		}
	}
	return exit
}

func printGenerated(attack fuzz.AttackType, b fuzz.Bounds, seed uint32) int {
	doc, err := fuzz.Generate(attack, b, seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return 2
	}
	return 0
}

// #endregion run

// #region inspect

func listRuns(ctx context.Context, store fuzz.Store, limit int) int {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list runs: %v\n", err)
		return 2
	}
	if len(runs) == 0 {
		fmt.Println("no fuzz runs recorded")
		return 0
	}
	printHeader()
	for _, rec := range runs {
		printRow(rec)
	}
	return 0
}

func showRun(ctx context.Context, store fuzz.Store, id string) int {
	rec, err := store.GetRun(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get run: %v\n", err)
		return 2
	}
	snaps, err := store.Snapshots(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshots: %v\n", err)
		return 2
	}
	out := struct {
		Run       fuzz.RunRecord `json:"run"`
		Snapshots any            `json:"snapshots"`
	}{rec, snaps}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		return 2
	}
	fmt.Println(string(data))
	return 0
}

// #endregion inspect

// #region output

func printHeader() {
	fmt.Printf("%-10s| %-18s| %-10s| %-10s| %-6s| %-10s| %s\n", "Run", "Attack", "Seed", "Status", "Steps", "Invariants", "Error")
	fmt.Printf("%-10s+%-19s+%-11s+%-11s+%-7s+%-11s+%s\n", "----------", "-------------------", "-----------", "-----------", "-------", "-----------", "------")
}

func printRow(rec fuzz.RunRecord) {
	attack := string(rec.Attack)
	if attack == "" {
		attack = rec.ScenarioID
	}
	held := 0
	for _, r := range rec.Invariants {
		if r.Passed {
			held++
		}
	}
	inv := fmt.Sprintf("%d/%d", held, len(rec.Invariants))
	fmt.Printf("%-10s| %-18s| %-10d| %-10s| %-6d| %-10s| %s\n",
		shortID(rec.ID), attack, rec.Seed, rec.Status, rec.Summary.StepsRun, inv, rec.Summary.Error)
}

// #endregion output

// #region helpers

func attackList() string {
	names := make([]string, 0, len(fuzz.AttackTypes()))
	for _, a := range fuzz.AttackTypes() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
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

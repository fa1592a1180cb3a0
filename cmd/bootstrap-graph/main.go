package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/Blackthor84/WorkVouch-sub000/internal/action"
	"github.com/Blackthor84/WorkVouch-sub000/internal/app"
	"github.com/Blackthor84/WorkVouch-sub000/internal/fuzz"
	"github.com/Blackthor84/WorkVouch-sub000/internal/graph"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("TRUSTSIM_CONFIG", "trustsim.yaml"), "path to YAML config")
	sandboxID := flag.String("sandbox", "", "sandbox scope to seed (default: new uuid)")
	actors := flag.Int("actors", 12, "organic actors")
	refs := flag.Int("refs", 30, "organic references")
	ring := flag.Int("ring", 3, "size of the planted boost ring (0 to skip)")
	colleagues := flag.Int("colleagues", 8, "colleague edges")
	seed := flag.Uint("seed", 1, "generator seed")
	flag.Parse()

	if *actors < 2 {
		fmt.Fprintln(os.Stderr, "usage: bootstrap-graph [--actors N>=2] [--refs N] [--ring N] [--seed N] [--sandbox id]")
		os.Exit(2)
	}
	if *sandboxID == "" {
		*sandboxID = uuid.New().String()
	}
	os.Exit(run(*configPath, *sandboxID, *actors, *refs, *ring, *colleagues, uint32(*seed)))
}

func run(configPath, scope string, actors, refs, ringSize, colleagues int, seed uint32) int {
	ctx := context.Background()
	cfg, shutdown, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	defer shutdown(ctx)
	cfg.Remote.Addr = ""

	env, err := app.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 2
	}
	defer env.Close()
	gs := env.Sandbox.Graph()
	rng := fuzz.NewLCG(seed)

	fmt.Println("=== Graph Bootstrap Tool ===")
	fmt.Printf("  DB: %s | Sandbox: %s | Seed: %d\n", cfg.Storage.DSN, scope, seed)
	fmt.Printf("  Actors: %d | References: %d | Ring: %d\n", actors, refs, ringSize)

	as := func(actor string) action.ExecContext {
		return action.ExecContext{SandboxID: scope, ActorID: actor, Mode: "safe", SafeMode: true}
	}
	ids := make([]string, actors)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%02d", i)
	}

	// Phase 1: organic references with ratings spread over [1,5]
	fmt.Println("\n--- Phase 1: Organic References ---")
	refCount := 0
	for i := 0; i < refs; i++ {
		from := ids[rng.Intn(len(ids))]
		to := ids[rng.Intn(len(ids))]
		if from == to {
			continue
		}
		res := env.Registry.Invoke(ctx, action.SubmitReference,
			map[string]any{"target": to, "rating": rng.Range(1, 5)}, as(from))
		if !res.OK {
			log.Printf("reference %s -> %s: %s", from, to, res.Error)
			continue
		}
		refCount++
	}
	fmt.Printf("  Total references: %d\n", refCount)

	// Phase 2: planted boost ring, each member rating the next at 5
	ringCount := 0
	var members []string
	if ringSize >= 2 {
		fmt.Println("\n--- Phase 2: Boost Ring ---")
		for i := 0; i < ringSize; i++ {
			members = append(members, fmt.Sprintf("ring-%02d", i))
		}
		for i, m := range members {
			next := members[(i+1)%len(members)]
			res := env.Registry.Invoke(ctx, action.SubmitReference,
				map[string]any{"target": next, "rating": 5, "comment": "ring"}, as(m))
			if !res.OK {
				log.Printf("ring edge %s -> %s: %s", m, next, res.Error)
				continue
			}
			ringCount++
		}
		fmt.Printf("  Ring edges: %d\n", ringCount)
	}

	// Phase 3: colleague edges carry no rating and stay out of scoring
	fmt.Println("\n--- Phase 3: Colleague Edges ---")
	colleagueCount := 0
	for i := 0; i < colleagues; i++ {
		a, b := ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))]
		if a == b {
			continue
		}
		if err := gs.AddEdge(ctx, scope, a, b, graph.EdgeColleague, 0.1+0.4*rng.Float()); err != nil {
			log.Printf("colleague edge error: %v", err)
			continue
		}
		colleagueCount++
	}
	fmt.Printf("  Total colleague edges: %d\n", colleagueCount)

	// Phase 4: recalculate every actor in scope
	fmt.Println("\n--- Phase 4: Recalculate ---")
	res := env.Registry.Invoke(ctx, action.Recalculate, nil, as("bootstrap"))
	if !res.OK {
		fmt.Fprintf(os.Stderr, "recalculate: %s\n", res.Error)
		return 1
	}
	scores, err := env.Sandbox.Scores(ctx, scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scores: %v\n", err)
		return 1
	}
	names := make([]string, 0, len(scores))
	for id := range scores {
		names = append(names, id)
	}
	sort.Slice(names, func(i, j int) bool { return scores[names[i]] > scores[names[j]] })
	for _, id := range names {
		marker := ""
		if len(members) > 0 {
			if cyc, _ := gs.InCycle(ctx, scope, id, members[0], cfg.Sandbox.CycleDepth, 256); cyc {
				marker = "  (in cycle)"
			}
		}
		fmt.Printf("  %-10s %6.2f%s\n", id, scores[id], marker)
	}

	edges, err := gs.Edges(ctx, scope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "edges: %v\n", err)
		return 1
	}
	fmt.Printf("\n=== Bootstrap Complete ===\n")
	fmt.Printf("  Sandbox: %s\n", scope)
	fmt.Printf("  Actors scored: %d\n", len(scores))
	fmt.Printf("  Reference edges: %d (ring %d)\n", refCount+ringCount, ringCount)
	fmt.Printf("  Colleague edges: %d\n", colleagueCount)
	fmt.Printf("  Distinct edges stored: %d\n", len(edges))
	return 0
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/Blackthor84/WorkVouch-sub000/internal/app"
	"github.com/Blackthor84/WorkVouch-sub000/internal/scenario"
)

// #region main

func main() {
	configPath := flag.String("config", envOr("TRUSTSIM_CONFIG", "trustsim.yaml"), "path to YAML config")
	file := flag.String("file", "", "scenario document (JSON or YAML)")
	mode := flag.String("mode", "", "override the document mode (safe|real)")
	startStep := flag.Int("start-step", 0, "resume at this step index")
	operator := flag.String("operator", "", "operator id for timeline attribution")
	attribution := flag.String("attribution", string(scenario.AttributeImpersonated), "timeline owner (impersonated|operator)")
	sandboxID := flag.String("sandbox", "", "sandbox id (default: new uuid)")
	validateOnly := flag.Bool("validate", false, "parse and validate only")
	asJSON := flag.Bool("json", false, "print the run result as JSON")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: scenario --file scenario.yaml [--mode safe|real] [--start-step N] [--json]")
		os.Exit(2)
	}

	doc, err := scenario.ParseFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if *mode != "" {
		doc.Mode = scenario.Mode(*mode)
		if err := doc.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
	}
	if *validateOnly {
		fmt.Printf("%s: %d actors, %d steps, %d assertions (mode %s)\n",
			doc.ID, len(doc.Actors), len(doc.Steps), len(doc.Assertions), doc.Mode)
		os.Exit(0)
	}

	opts := scenario.Options{
		SandboxID:   *sandboxID,
		StartStep:   *startStep,
		OperatorID:  *operator,
		Attribution: scenario.Attribution(*attribution),
	}
	if opts.SandboxID == "" {
		opts.SandboxID = uuid.New().String()
	}
	os.Exit(run(*configPath, doc, opts, *asJSON))
}

// #endregion main

// #region run

func run(configPath string, doc *scenario.Doc, opts scenario.Options, asJSON bool) int {
	ctx := context.Background()
	cfg, shutdown, err := app.Bootstrap(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	defer shutdown(ctx)

	env, err := app.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		return 2
	}
	defer env.Close()

	res, err := env.Scenarios.Run(ctx, doc, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 2
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			return 2
		}
	} else {
		printResult(res)
	}
	if !res.Passed {
		return 1
	}
	return 0
}

// #endregion run

// #region output

func printResult(res *scenario.RunResult) {
	fmt.Printf("Scenario %s  run %s  sandbox %s\n\n", res.ScenarioID, shortID(res.RunID), shortID(res.SandboxID))
	fmt.Printf("%-4s| %-16s| %-18s| %-10s| %-6s| %s\n", "#", "Step", "Action", "As", "Result", "Detail")
	fmt.Printf("%-4s+%-17s+%-19s+%-11s+%-7s+%s\n", "----", "-----------------", "-------------------", "-----------", "-------", "--------")
	for _, s := range res.Steps {
		result := "OK"
		detail := ""
		switch {
		case s.Skipped:
			result = "SKIP"
			detail = scenario.SkippedRealOnly
		case !s.OK:
			result = "FAIL"
			detail = s.Error
		}
		if len(s.Result.Flags) > 0 {
			detail = fmt.Sprintf("%s %v", detail, s.Result.Flags)
		}
		fmt.Printf("%-4d| %-16s| %-18s| %-10s| %-6s| %s\n", s.Index, s.StepID, s.Action, s.ActorRef, result, detail)
	}

	if len(res.Assertions) > 0 {
		fmt.Println()
		fmt.Printf("%-26s| %-6s| %-9s| %s\n", "Assertion", "Pass", "Actual", "Message")
		fmt.Printf("%-26s+%-7s+%-10s+%s\n", "--------------------------", "-------", "----------", "--------")
		for _, a := range res.Assertions {
			name := a.Type
			if a.Name != "" {
				name = a.Name
			}
			fmt.Printf("%-26s| %-6v| %-9.2f| %s\n", name, a.Passed, a.Actual, a.Message)
		}
	}

	status := "PASSED"
	if !res.Passed {
		status = "FAILED"
	}
	if res.Partial {
		status += fmt.Sprintf(" (partial, halted at step %d)", res.FailedStep)
	}
	fmt.Printf("\nSummary: %d steps, %d assertions, %s\n", len(res.Steps), len(res.Assertions), status)
}

// #endregion output

// #region helpers

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

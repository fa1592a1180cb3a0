package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Blackthor84/WorkVouch-sub000/internal/eventlog"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", envOr("TRUSTSIM_DB", "trustsim.db"), "path to the SQLite file holding the action log")
	stream := flag.String("stream", "", "stream to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	description := flag.String("description", "", "fixture description (default: derived from stream)")
	flag.Parse()

	if *stream == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --stream scope:actor:version --out path/to/fixture.json [--db path/to/db]")
		os.Exit(2)
	}

	if err := run(*dbPath, *stream, *outPath, *description); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, stream, outPath, description string) error {
	store, err := eventlog.NewStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Load(context.Background(), stream)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("stream %q has no records", stream)
	}

	// Refuse to freeze a log that no longer reproduces its own fingerprints.
	if report := eventlog.Verify(recs); report.Status != eventlog.StatusComplete {
		return fmt.Errorf("stream %q does not verify: %s at %d: %s", stream, report.Status, report.DivergedAt, report.Error)
	}

	e := eventlog.NewEngine()
	if err := e.Hydrate(recs); err != nil {
		return err
	}
	if description == "" {
		description = fmt.Sprintf("action log %s (%d records)", stream, len(recs))
	}
	f, err := eventlog.NewFixture(description, stream, e)
	if err != nil {
		return err
	}
	if err := eventlog.WriteFixture(outPath, f); err != nil {
		return err
	}

	fmt.Printf("Exported %d records from %s to %s\n", len(recs), stream, outPath)
	fmt.Printf("  state fingerprint: %s\n", f.ExpectedStateFingerprint)
	return nil
}

// #endregion export

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers

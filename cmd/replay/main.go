package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Blackthor84/WorkVouch-sub000/internal/eventlog"
	"github.com/Blackthor84/WorkVouch-sub000/internal/fingerprint"
	"github.com/Blackthor84/WorkVouch-sub000/internal/trust"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the SQLite file holding the action log (DB mode)")
	stream := flag.String("stream", "", "stream to replay (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	dbMode := *dbPath != "" && *stream != ""
	if dbMode == (*fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/trustsim.db --stream scope:actor:version")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *stream)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runDBMode(dbPath, stream string) int {
	store, err := eventlog.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	recs, err := store.Load(context.Background(), stream)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load stream: %v\n", err)
		return 2
	}
	if len(recs) == 0 {
		fmt.Fprintf(os.Stderr, "stream %q has no records\n", stream)
		return 2
	}
	return printComparison(recs, "")
}

func runFixtureMode(path string) int {
	f, err := eventlog.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}
	code := printComparison(f.Records, f.ExpectedStateFingerprint)

	res, err := f.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "run fixture: %v\n", err)
		return 2
	}
	if !res.Matches {
		fmt.Printf("Fixture: DIFF (expected %s, replayed %s)\n", shortID(f.ExpectedStateFingerprint), shortID(res.StateFingerprint))
		return 1
	}
	fmt.Println("Fixture: OK")
	return code
}

// #endregion modes

// #region output

// printComparison re-folds recs, printing the recorded and replayed state
// fingerprint for every record. It returns 1 on any divergence.
func printComparison(recs []eventlog.Record, expectedFinal string) int {
	fmt.Printf("%-5s| %-24s| %-14s| %-14s| %s\n", "Seq", "Action", "Recorded", "Replayed", "Match")
	fmt.Printf("%-5s+%-25s+%-15s+%-15s+%s\n", "-----", "-------------------------", "---------------", "---------------", "------")

	s := trust.Initial()
	matches := 0
	for i, r := range recs {
		replayed := "ERROR"
		a, err := r.Action()
		if err == nil {
			s = trust.Reduce(s, a)
			if fp, ferr := fingerprint.Of(s); ferr == nil {
				replayed = fp
			}
		}
		match := "DIFF"
		if replayed == r.StateFingerprint {
			match = "OK"
			matches++
		}
		fmt.Printf("%-5d| %-24s| %-14s| %-14s| %s\n", i, r.ActionType, shortID(r.StateFingerprint), shortID(replayed), match)
	}

	report := eventlog.Verify(recs)
	diverge := len(recs) - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge (%s)\n", len(recs), matches, diverge, report.Status)
	fmt.Printf("Final: subject=%s trust=%.2f profile=%.2f confidence=%.2f seq=%d\n",
		s.Subject, s.TrustScore, s.ProfileStrength, s.ConfidenceScore, s.Seq)
	if expectedFinal != "" {
		fmt.Printf("Expected final fingerprint: %s\n", shortID(expectedFinal))
	}

	if diverge > 0 || report.Status != eventlog.StatusComplete {
		return 1
	}
	return 0
}

func shortID(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// #endregion output

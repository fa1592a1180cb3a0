package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Blackthor84/WorkVouch-sub000/internal/logging"
	"github.com/Blackthor84/WorkVouch-sub000/internal/multiverse"
)

// #region main
func main() {
	importPath := flag.String("import", "", "load universes from an export file")
	exportPath := flag.String("export", "", "write universes to this file on exit")
	level := flag.String("log-level", envOr("TRUSTSIM_LOG_LEVEL", "warn"), "diagnostic log level")
	flag.Parse()

	logger, err := logging.Install(logging.Config{Level: *level})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	m := multiverse.New(multiverse.WithLogger(logger))
	if *importPath != "" {
		if err := importFile(m, *importPath); err != nil {
			log.Fatalf("import: %v", err)
		}
	} else {
		m.CreateUniverse("prime", nil, nil)
	}

	fmt.Println("Trust Multiverse ready.")
	fmt.Println("Type 'help' for commands (or 'quit' to exit):")
	repl(m, os.Stdin, os.Stdout)

	if *exportPath != "" {
		if err := exportFile(m, *exportPath); err != nil {
			log.Fatalf("export: %v", err)
		}
		fmt.Printf("exported to %s\n", *exportPath)
	}
}

// #endregion main

// #region repl
func repl(m *multiverse.Multiverse, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			break
		}
		if err := dispatch(m, fields, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func dispatch(m *multiverse.Multiverse, fields []string, out io.Writer) error {
	a, isAction, err := parseAction(fields)
	if err != nil {
		return err
	}
	if isAction {
		res, err := m.ExecuteAction(a)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatSnapshot(res.Snapshot))
		return nil
	}

	args := fields[1:]
	switch fields[0] {
	case "help":
		printHelp(out)
	case "show":
		u, ok := m.Active()
		if !ok {
			return multiverse.ErrNoActiveUniverse
		}
		head := u.Head()
		fmt.Fprintf(out, "%s (%s)\n%s\n", u.Name, u.ID, formatSnapshot(head))
		for _, it := range head.Items {
			fmt.Fprintln(out, formatItem(it, time.Now().UTC()))
		}
	case "history":
		u, ok := m.Active()
		if !ok {
			return multiverse.ErrNoActiveUniverse
		}
		for _, s := range u.Timeline {
			fmt.Fprintln(out, formatSnapshot(s))
		}
	case "list":
		active, _ := m.Active()
		for _, u := range m.List() {
			mark := " "
			if u.ID == active.ID {
				mark = "*"
			}
			parent := "-"
			if u.ParentID != nil {
				parent = shortID(*u.ParentID)
			}
			head := u.Head()
			fmt.Fprintf(out, "%s %-10s %-16s parent=%-10s seq=%-4d trust=%.2f\n",
				mark, shortID(u.ID), u.Name, parent, head.Seq, head.TrustScore)
		}
	case "new":
		name := "universe"
		if len(args) > 0 {
			name = args[0]
		}
		u := m.CreateUniverse(name, nil, nil)
		fmt.Fprintf(out, "created %s (%s)\n", u.Name, u.ID)
	case "fork":
		u, err := m.Fork()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "forked %s (%s), now active\n", u.Name, u.ID)
	case "use":
		if len(args) != 1 {
			return fmt.Errorf("usage: use <universe-id>")
		}
		id, err := resolveID(m, args[0])
		if err != nil {
			return err
		}
		return m.Activate(id)
	case "merge":
		if len(args) != 2 {
			return fmt.Errorf("usage: merge <target-id> <source-id>")
		}
		target, err := resolveID(m, args[0])
		if err != nil {
			return err
		}
		source, err := resolveID(m, args[1])
		if err != nil {
			return err
		}
		return m.Merge(target, source)
	case "destroy":
		if len(args) != 1 {
			return fmt.Errorf("usage: destroy <universe-id>")
		}
		id, err := resolveID(m, args[0])
		if err != nil {
			return err
		}
		return m.Destroy(id)
	case "presets":
		for _, p := range multiverse.ChaosPresets() {
			fmt.Fprintf(out, "  %-22s %s\n", p[0], p[1])
		}
	case "export":
		if len(args) != 1 {
			return fmt.Errorf("usage: export <file>")
		}
		return exportFile(m, args[0])
	case "import":
		if len(args) != 1 {
			return fmt.Errorf("usage: import <file>")
		}
		return importFile(m, args[0])
	default:
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}
	return nil
}

// resolveID accepts a full id or a unique prefix.
func resolveID(m *multiverse.Multiverse, prefix string) (string, error) {
	var match string
	for _, u := range m.List() {
		if u.ID == prefix {
			return u.ID, nil
		}
		if strings.HasPrefix(u.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous universe id %q", prefix)
			}
			match = u.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", multiverse.ErrUniverseNotFound, prefix)
	}
	return match, nil
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `signals:   inject <kind> [weight] [source] [note]   mutate <id|-> <w>   backdate <id|-> <days>   delete [id|-]
items:     add <kind> <id> [weight] [source]   remove <id>   threshold <v>   save [label]
chaos:     chaos <preset>   presets   replay <name> <preset>...
universes: show   history   list   new [name]   fork   use <id>   merge <target> <source>   destroy <id>
files:     export <file>   import <file>
`)
}

// #endregion repl

// #region helpers
func exportFile(m *multiverse.Multiverse, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func importFile(m *multiverse.Multiverse, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := m.Import(f); err != nil {
		return err
	}
	slog.Default().Info("imported universes", "path", path, "count", len(m.List()))
	return nil
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

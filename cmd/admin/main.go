package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tickcraft.ai/internal/persistence/indexdb"
	"tickcraft.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			os.Exit(dbCmd(os.Args[2:], os.Stdout))
		case "state":
			os.Exit(stateCmd(os.Args[2:], os.Stdout))
		}
	}
	os.Exit(listCmd(os.Args[1:], os.Stdout))
}

// listCmd prints the snapshot files on disk with their headers.
func listCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		return 1
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		h, err := snapshot.ReadHeader(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(out, "%s\tunreadable: %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%s\ttick=%d\tdigest=%s\n", name, h.Tick, h.Digest)
	}
	return 0
}

// dbCmd queries the SQLite read model: snapshots, slow, or commits.
func dbCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	entityID := fs.Int("entity", 0, "entity id (commits)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		return 1
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		return 1
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var rows any
	switch q {
	case "snapshots":
		rows, err = idx.Snapshots(ctx, *limit)
	case "slow":
		rows, err = idx.SlowestTicks(ctx, *limit)
	case "commits":
		if *entityID == 0 {
			fmt.Fprintln(os.Stderr, "missing -entity")
			return 2
		}
		rows, err = idx.Commits(ctx, int32(*entityID), *limit)
	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (snapshots, slow, commits)\n", q)
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		return 1
	}
	printJSON(out, rows)
	return 0
}

// stateCmd fetches /metrics from a running server.
func stateCmd(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/metrics"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	for _, line := range strings.Split(string(b), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			fmt.Fprintln(out, line)
		}
	}
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}

func printJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

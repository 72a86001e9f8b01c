package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/fanout/internal/batch"
	"github.com/aristath/fanout/internal/config"
	"github.com/aristath/fanout/internal/events"
	"github.com/aristath/fanout/internal/orchestrator"
	"github.com/aristath/fanout/internal/persistence"
	"github.com/aristath/fanout/internal/query"
	"github.com/aristath/fanout/internal/simulator"
	"github.com/aristath/fanout/internal/tui"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		queryName = flag.String("query", "My Query", "name of the query")
		startStr  = flag.String("start", "", "start date (YYYY-MM-DD, default 7 days ago)")
		endStr    = flag.String("end", "", "end date (YYYY-MM-DD, default today)")
		boxStr    = flag.String("box", "34.0,-118.5,34.3,-118.0", "bounding box: minLat,minLon,maxLat,maxLon")
		loadName  = flag.String("load", "", "load a saved query by name instead of flags")
		save      = flag.Bool("save", false, "save the query spec before running")
		headless  = flag.Bool("headless", false, "run without the TUI, logging transitions")
		seed      = flag.Int64("seed", 0, "RNG seed for the simulator (0 = time-based)")
	)
	flag.Parse()

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	spec, err := resolveSpec(ctx, *loadName, *queryName, *startStr, *endStr, *boxStr, *save)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewEventBus()
	defer bus.Close()

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	client := simulator.NewClient(rngSeed)
	units := simulator.UnitsFor(cfg.Catalog())

	orch := orchestrator.New(bus)
	if err := orch.SubmitAll(units, client.WorkFor(spec)); err != nil {
		fmt.Fprintf(os.Stderr, "Error submitting batch: %v\n", err)
		os.Exit(1)
	}

	if *headless {
		runHeadless(ctx, orch, bus, cfg.PollInterval())
		return
	}

	model := tui.New(orch, bus, cfg.PollInterval())
	p := tea.NewProgram(model, tea.WithAltScreen())

	type tuiResult struct {
		model tea.Model
		err   error
	}
	resChan := make(chan tuiResult, 1)
	go func() {
		m, err := p.Run()
		resChan <- tuiResult{model: m, err: err}
	}()

	select {
	case res := <-resChan:
		orch.Shutdown()
		if res.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", res.err)
			os.Exit(1)
		}
		// The alt screen erased the TUI; leave the outcome on stdout
		// when the batch actually finished before the user quit.
		if m, ok := res.model.(tui.Model); ok && m.Done() {
			c := orch.Counts()
			fmt.Printf("Summary: %d successful, %d failed\n", c.Succeeded, c.Failed)
			for _, line := range resultLines(orch.Snapshot(), orch.Order()) {
				fmt.Println(line)
			}
		}
	case <-ctx.Done():
		// Signal received; restore default handling so a second Ctrl+C
		// force-exits.
		stop()
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case res := <-resChan:
			if res.err != nil {
				log.Printf("TUI exit error: %v", res.err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
		orch.Shutdown()
	}
}

// resolveSpec builds the query spec from flags, or loads a saved one.
// With save set, the resulting spec is persisted for later -load runs.
func resolveSpec(ctx context.Context, loadName, queryName, startStr, endStr, boxStr string, save bool) (query.Spec, error) {
	var spec query.Spec

	if loadName != "" {
		store, err := openStore(ctx)
		if err != nil {
			return query.Spec{}, err
		}
		defer store.Close()

		spec, err = store.GetQuery(ctx, loadName)
		if err != nil {
			return query.Spec{}, err
		}
		return spec, nil
	}

	spec, err := buildSpec(queryName, startStr, endStr, boxStr, time.Now())
	if err != nil {
		return query.Spec{}, err
	}
	if err := spec.Validate(); err != nil {
		return query.Spec{}, err
	}

	if save {
		store, err := openStore(ctx)
		if err != nil {
			return query.Spec{}, err
		}
		defer store.Close()

		if err := store.SaveQuery(ctx, spec); err != nil {
			return query.Spec{}, err
		}
	}

	return spec, nil
}

// buildSpec assembles a query spec from flag values. Empty dates default
// to the last seven days ending at now.
func buildSpec(name, startStr, endStr, boxStr string, now time.Time) (query.Spec, error) {
	start := now.AddDate(0, 0, -7)
	end := now

	if startStr != "" {
		t, err := time.Parse(dateLayout, startStr)
		if err != nil {
			return query.Spec{}, fmt.Errorf("parsing start date %q: %w", startStr, err)
		}
		start = t
	}
	if endStr != "" {
		t, err := time.Parse(dateLayout, endStr)
		if err != nil {
			return query.Spec{}, fmt.Errorf("parsing end date %q: %w", endStr, err)
		}
		// End of day, so a same-day range is non-empty.
		end = t.Add(24*time.Hour - time.Second)
	}

	box, err := parseBox(boxStr)
	if err != nil {
		return query.Spec{}, err
	}

	return query.Spec{
		Name:      name,
		TimeRange: query.TimeRange{Start: start, End: end},
		GeoBox:    box,
	}, nil
}

// parseBox parses "minLat,minLon,maxLat,maxLon".
func parseBox(s string) (query.GeoBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return query.GeoBox{}, fmt.Errorf("bounding box needs 4 comma-separated values, got %q", s)
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return query.GeoBox{}, fmt.Errorf("parsing bounding box value %q: %w", p, err)
		}
		vals[i] = v
	}

	return query.GeoBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}, nil
}

func openStore(ctx context.Context) (*persistence.SQLiteStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return persistence.NewSQLiteStore(ctx, filepath.Join(homeDir, ".fanout", "fanout.db"))
}

// runHeadless polls the orchestrator until the batch completes, logging
// each transition from the event bus, then prints a summary and shuts down.
func runHeadless(ctx context.Context, orch *orchestrator.Orchestrator, bus *events.EventBus, interval time.Duration) {
	sub := bus.Subscribe(events.TopicTask, 256)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !orch.IsComplete() {
		select {
		case e := <-sub:
			logEvent(e)
		case <-ticker.C:
		case <-ctx.Done():
			log.Println("Interrupted; shutting down")
			orch.Shutdown()
			return
		}
	}

	// The last terminal event is published just after the completion flag
	// flips; give it a moment to land before the summary.
	draining := true
	for draining {
		select {
		case e := <-sub:
			logEvent(e)
		case <-time.After(50 * time.Millisecond):
			draining = false
		}
	}

	c := orch.Counts()
	log.Printf("Summary: %d successful, %d failed", c.Succeeded, c.Failed)
	for _, line := range resultLines(orch.Snapshot(), orch.Order()) {
		log.Println(line)
	}
	orch.Shutdown()
}

// resultLines renders one line per finished task: the marshaled payload
// for successes, the error for failures.
func resultLines(snap map[string]batch.TaskState, order []string) []string {
	lines := make([]string, 0, len(order))
	for _, id := range order {
		task, ok := snap[id]
		if !ok || task.Outcome == nil {
			continue
		}
		if task.Status != batch.StatusSucceeded {
			lines = append(lines, fmt.Sprintf("%s error: %s", task.Unit.Label, task.Outcome.Err))
			continue
		}
		data, err := json.Marshal(task.Outcome.Data)
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s result: %v", task.Unit.Label, task.Outcome.Data))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s result: %s", task.Unit.Label, data))
	}
	return lines
}

func logEvent(e events.Event) {
	switch e := e.(type) {
	case events.TaskStartedEvent:
		log.Printf("%s started", e.Label)
	case events.TaskSucceededEvent:
		log.Printf("%s completed in %.1fs", e.Label, e.Duration.Seconds())
	case events.TaskFailedEvent:
		log.Printf("%s failed after %.1fs: %s", e.Label, e.Duration.Seconds(), e.Err)
	}
}

// Command acts is a minimal front-end: it deploys a single model file and
// blocks until that model's process reaches a terminal state, following
// spec.md §6 Environment/CLI. It is not a packaging surface — no plugin
// loading, no multi-model supervision (SPEC_FULL.md §5 Non-goals).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	acts "github.com/dshills/acts-go"
	"github.com/dshills/acts-go/emit"
	"github.com/dshills/acts-go/script"
	"github.com/dshills/acts-go/store"
)

func main() {
	var (
		modelPath = flag.String("m", "", "path to a model JSON file to deploy and run (required)")
		tick      = flag.Duration("tick", time.Second, "timeout-check tick interval, minimum 1s")
		dsn       = flag.String("store", "", "store DSN: empty for in-memory, \"sqlite:<path>\", or \"mysql:<dsn>\"")
		inputsArg = flag.String("inputs", "{}", "JSON object passed as the root process's inputs")
	)
	flag.Parse()

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "acts: -m <model.json> is required")
		flag.Usage()
		os.Exit(2)
	}

	st, err := openStore(*dsn)
	if err != nil {
		log.Fatalf("acts: open store: %v", err)
	}

	data, err := os.ReadFile(*modelPath)
	if err != nil {
		log.Fatalf("acts: read model: %v", err)
	}
	var wf acts.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		log.Fatalf("acts: parse model: %v", err)
	}

	var inputs map[string]any
	if err := json.Unmarshal([]byte(*inputsArg), &inputs); err != nil {
		log.Fatalf("acts: parse -inputs: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := acts.NewEngine(st, script.NewHost(os.Stdout), emit.NewLogEmitter(os.Stdout, false), acts.RuntimeConfig{
		TickInterval: *tick,
	})

	model, err := engine.Deploy(ctx, wf)
	if err != nil {
		log.Fatalf("acts: deploy: %v", err)
	}

	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("acts: scheduler stopped: %v", err)
		}
	}()

	pid, err := engine.Start(ctx, model.Workflow.ID, inputs)
	if err != nil {
		log.Fatalf("acts: start: %v", err)
	}
	log.Printf("acts: started process %s for model %s@%s", pid, model.Workflow.ID, model.Workflow.Ver)

	waitForTerminal(ctx, engine, pid, *tick)
	engine.Runtime.Stop()
}

// waitForTerminal polls the process's root task state until it terminates
// or ctx is cancelled, using the same interval as the timeout tick source
// since neither needs finer resolution than the scheduler itself ticks at.
func waitForTerminal(ctx context.Context, engine *acts.Engine, pid string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			proc, ok := engine.Runtime.Cache.Get(pid)
			if !ok {
				return
			}
			if proc.State.IsTerminal() {
				log.Printf("acts: process %s terminated: %s", pid, proc.State)
				return
			}
		}
	}
}

func openStore(dsn string) (acts.Store, error) {
	switch {
	case dsn == "":
		return store.NewMemoryStore(), nil
	case len(dsn) > 7 && dsn[:7] == "sqlite:":
		return store.NewSQLiteStore(dsn[7:])
	case len(dsn) > 6 && dsn[:6] == "mysql:":
		return store.NewMySQLStore(dsn[6:])
	default:
		return nil, fmt.Errorf("acts: unrecognized -store DSN %q (want sqlite:<path> or mysql:<dsn>)", dsn)
	}
}

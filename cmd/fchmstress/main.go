// Command fchmstress drives randomized put/remove/copy/release traffic
// against a fchm.Series and prints checkpoint summaries, for manual
// fuzzing and soak testing outside `go test`.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fchm/fchm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		iterations int
		opsPerCopy int
		keepCopies int
		numKeys    int
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "fchmstress",
		Short: "Soak-test a fast-copyable hashmap series",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context(), stressConfig{
				iterations: iterations,
				opsPerCopy: opsPerCopy,
				keepCopies: keepCopies,
				numKeys:    numKeys,
				seed:       seed,
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&iterations, "iterations", 1_000_000, "number of put/remove operations to run")
	flags.IntVar(&opsPerCopy, "ops-per-copy", 1000, "operations between each copy() call")
	flags.IntVar(&keepCopies, "keep-copies", 10, "number of immutable snapshots to keep live at once")
	flags.IntVar(&numKeys, "num-keys", 10_000, "size of the randomized key space")
	flags.Int64Var(&seed, "seed", 1, "PRNG seed, for reproducible runs")

	return cmd
}

type stressConfig struct {
	iterations int
	opsPerCopy int
	keepCopies int
	numKeys    int
	seed       int64
}

func runStress(ctx context.Context, cfg stressConfig) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	s, mutable := fchm.New[int, int](ctx, fchm.WithLogger(logger))
	defer s.Close()

	rng := rand.New(rand.NewSource(cfg.seed))
	live := make([]*fchm.Snapshot[int, int], 0, cfg.keepCopies+1)

	start := time.Now()
	opsSinceCopy := 0
	copies := 0

	for i := 0; i < cfg.iterations; i++ {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, releasing live snapshots", "processed", i)
			return releaseAll(live, s)
		default:
		}

		k := rng.Intn(cfg.numKeys)
		if rng.Intn(3) == 2 {
			if _, _, err := mutable.Remove(k); err != nil {
				return fmt.Errorf("remove: %w", err)
			}
		} else {
			if _, _, err := mutable.Put(k, rng.Int()); err != nil {
				return fmt.Errorf("put: %w", err)
			}
		}
		opsSinceCopy++

		if opsSinceCopy >= cfg.opsPerCopy {
			opsSinceCopy = 0
			copies++

			next, err := mutable.Copy()
			if err != nil {
				return fmt.Errorf("copy: %w", err)
			}
			live = append(live, mutable)
			mutable = next

			for len(live) > cfg.keepCopies {
				idx := rng.Intn(len(live))
				victim := live[idx]
				live = append(live[:idx], live[idx+1:]...)
				if err := victim.Release(); err != nil {
					return fmt.Errorf("release v%d: %w", victim.Version(), err)
				}
			}

			if copies%100 == 0 {
				sz, err := mutable.Size()
				if err != nil {
					return fmt.Errorf("size: %w", err)
				}
				logger.Info("checkpoint",
					"ops", i+1,
					"copies", copies,
					"version", mutable.Version(),
					"live_span", s.LiveSpan(),
					"size", sz,
					"elapsed", time.Since(start).Round(time.Millisecond),
				)
			}
		}
	}

	return releaseAll(live, s)
}

func releaseAll(live []*fchm.Snapshot[int, int], s *fchm.Series[int, int]) error {
	for _, snap := range live {
		if err := snap.Release(); err != nil {
			return fmt.Errorf("release v%d: %w", snap.Version(), err)
		}
	}
	if err := s.ReleaseMutable(); err != nil {
		return fmt.Errorf("release mutable: %w", err)
	}
	return nil
}

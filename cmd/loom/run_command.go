package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"loom/internal/events"
	"loom/internal/journal"
	"loom/internal/notify"
	"loom/internal/runqueue"
	"loom/internal/worker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var count int
	var maxWorkers int
	var ioBound bool
	var kwargFlags []string

	cmd := &cobra.Command{
		Use:   "run <task> [arg...]",
		Short: "Run a registered task in worker processes",
		Long: `Run submits workers for a registered task through a bounded queue.
Positional arguments are parsed as JSON when possible and passed to the
task; plain words are passed as strings. Interrupting the run cancels
every queued and running worker.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			task := cliArgs[0]
			if _, ok := worker.DefaultRegistry().Lookup(task); !ok {
				return fmt.Errorf("task %q is not registered (see `loom tasks`)", task)
			}
			args := parseArgValues(cliArgs[1:])
			kwargs, err := parseKwargFlags(kwargFlags)
			if err != nil {
				return err
			}
			if count < 1 {
				count = 1
			}
			limit := maxWorkers
			if limit <= 0 {
				limit = cfg.Execution.MaxWorkers
			}
			if limit <= 0 {
				limit = worker.SuggestWorkers(ioBound, 0)
			}

			events.Initialize(
				events.WithBuffer(cfg.Events.BufferSize),
				events.WithLogger(logger),
			)
			defer events.Shutdown()

			if cfg.Journal.Enabled {
				j, err := journal.Open(cfg, logger)
				if err != nil {
					return fmt.Errorf("open journal: %w", err)
				}
				defer j.Close()
				events.Subscribe(j.Listener())
			}
			notifier := notify.NewService(cfg)
			events.Subscribe(notify.Listener(notifier))

			queue, err := runqueue.New(limit, runqueue.WithLogger(logger))
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()
			go func() {
				<-runCtx.Done()
				queue.CancelAll()
			}()

			started := time.Now()
			ids := make([]string, 0, count)
			for i := 0; i < count; i++ {
				w, err := worker.New(worker.Options{
					Task:          task,
					Args:          args,
					Kwargs:        kwargs,
					PublishEvents: true,
					Publisher:     events.DefaultPublisher(),
					GracePeriod:   cfg.GracePeriod(),
					Logger:        logger,
				})
				if err != nil {
					return fmt.Errorf("build worker: %w", err)
				}
				if err := queue.Submit(w); err != nil {
					return fmt.Errorf("submit worker: %w", err)
				}
				ids = append(ids, w.ID())
			}

			queue.Shutdown(true, false)
			elapsed := time.Since(started)

			// Drain event delivery before the journal closes.
			events.Shutdown()

			rows := make([][]string, 0, len(ids))
			failures := 0
			for _, id := range ids {
				res, err := queue.Result(id)
				if err != nil {
					return err
				}
				rows = append(rows, resultRow(id, task, res))
				if res.Status == worker.StatusError {
					failures++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out,
				[]string{"WORKER", "TASK", "STATUS", "DURATION", "OUTCOME"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d workers finished in %s\n", len(ids), elapsed.Round(time.Millisecond))

			_ = notifier.NotifyQueueDrained(cmd.Context(), len(ids), elapsed)

			if failures > 0 {
				return fmt.Errorf("%d of %d workers failed", failures, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of workers to submit")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Concurrency cap (defaults to configuration)")
	cmd.Flags().BoolVar(&ioBound, "io-bound", false, "Size the default cap for I/O-bound work")
	cmd.Flags().StringArrayVar(&kwargFlags, "kwarg", nil, "Keyword argument as key=value (value parsed as JSON when possible)")
	return cmd
}

func resultRow(id, task string, res worker.Result) []string {
	duration := ""
	if !res.StartedAt.IsZero() && !res.FinishedAt.IsZero() {
		duration = res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()
	}
	outcome := ""
	switch res.Status {
	case worker.StatusCompleted:
		outcome = strings.TrimSpace(string(res.Value))
	case worker.StatusError:
		if res.Err != nil {
			outcome = res.Err.Error()
		}
	}
	return []string{shortID(id), task, string(res.Status), duration, outcome}
}

// parseArgValues interprets CLI words as JSON when they parse, strings
// otherwise, so `loom run double 21` passes the number 21.
func parseArgValues(values []string) []any {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, 0, len(values))
	for _, value := range values {
		args = append(args, parseArgValue(value))
	}
	return args
}

func parseArgValue(value string) any {
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		return decoded
	}
	return value
}

func parseKwargFlags(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	kwargs := make(map[string]any, len(flags))
	for _, flag := range flags {
		key, value, ok := strings.Cut(flag, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --kwarg %q (expected key=value)", flag)
		}
		kwargs[key] = parseArgValue(value)
	}
	return kwargs, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

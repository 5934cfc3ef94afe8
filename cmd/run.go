package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pollster/internal/clix"
	"pollster/internal/models"
	"pollster/internal/polling"
)

var (
	runSlot    string
	runTimeout time.Duration
	runRaw     bool
)

// runCmd starts a job and follows it until it finishes.
var runCmd = &cobra.Command{
	Use:   "run <kind>",
	Short: "Start a job and poll it to completion",
	Long: `Starts a job of the given kind with the JSON payload from --payload, then
shows its progress until the backend returns the result.

Examples:
  pollster run apollo --payload '{"socData":"..."}'
  pollster run marketing-hooks --payload @hooks.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		raw, err := clix.ParsePayload(cmd.Flags())
		if err != nil {
			return err
		}
		var payload any
		if raw != nil {
			payload = raw
		}

		ctx := cmd.Context()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}

		var opts []polling.StartOption
		if runSlot != "" {
			opts = append(opts, polling.WithSlot(runSlot))
		}
		engine := appInstance.Engine
		slot, err := engine.StartJob(ctx, args[0], payload, opts...)
		if err != nil {
			return fmt.Errorf("failed to start %s job: %w", args[0], err)
		}

		updates, unsubscribe := engine.Subscribe(slot)
		defer unsubscribe()
		go printProgress(updates)

		st, err := engine.Wait(ctx, slot)
		if err != nil {
			if cancelErr := engine.Cancel(slot); cancelErr != nil {
				return fmt.Errorf("waiting for slot %s: %w", slot, err)
			}
			return fmt.Errorf("job in slot %s cancelled: %w", slot, err)
		}
		fmt.Fprintln(os.Stderr)

		if st.Status != models.StoreStatusSucceeded {
			return fmt.Errorf("job %s failed: %s", st.Kind, st.Error)
		}
		if runRaw {
			fmt.Println(string(st.Result))
			return nil
		}
		color.New(color.FgGreen, color.Bold).Fprintf(os.Stderr, "Job %s finished after %d polls\n", st.Kind, st.Polls)
		return printJSON(st.Result)
	},
}

func printProgress(updates <-chan polling.JobState) {
	bar := color.New(color.FgCyan)
	for st := range updates {
		if st.Status != models.StoreStatusLoading {
			continue
		}
		bar.Fprintf(os.Stderr, "\r%-24s %-12s progress %2d", st.Kind, st.JobStatus, st.Progress)
	}
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("payload", "", "JSON payload, or @file to read it from a file")
	runCmd.Flags().StringVar(&runSlot, "slot", "", "Slot to run the job in (default: a new slot)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Give up after this long (0 waits forever)")
	runCmd.Flags().BoolVar(&runRaw, "raw", false, "Print the result exactly as returned")
}

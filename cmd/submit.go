package cmd

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"pollster/internal/clix"
	"pollster/internal/tasks"
)

var (
	submitSlot  string
	submitQueue string
)

// submitCmd queues a job for the worker instead of running it in-process.
var submitCmd = &cobra.Command{
	Use:   "submit <kind>",
	Short: "Queue a job for the background worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := appInstance.Engine.Registry().Lookup(args[0]); err != nil {
			return err
		}
		payload, err := clix.ParsePayload(cmd.Flags())
		if err != nil {
			return err
		}

		var opts []asynq.Option
		if submitQueue != "" {
			opts = append(opts, asynq.Queue(submitQueue))
		}
		info, err := appInstance.JobClient.EnqueueRunJob(cmd.Context(), tasks.RunJobPayload{
			Slot:    submitSlot,
			Kind:    args[0],
			Payload: payload,
		}, opts...)
		if err != nil {
			return fmt.Errorf("failed to queue %s job: %w", args[0], err)
		}
		fmt.Printf("Queued %s job: task %s on queue %s\n", args[0], info.ID, info.Queue)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String("payload", "", "JSON payload, or @file to read it from a file")
	submitCmd.Flags().StringVar(&submitSlot, "slot", "", "Slot to run the job in (default: a new slot)")
	submitCmd.Flags().StringVar(&submitQueue, "queue", "", "Queue to submit to (default: "+tasks.QueueJobs+")")
}

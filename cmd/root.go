package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"pollster/internal/app"
	"pollster/internal/config"
	"pollster/internal/httpclient"
	"pollster/internal/notify"
)

var rootCmd = &cobra.Command{
	Use:   "pollster",
	Short: "Pollster CLI App",
	Long: `Pollster starts long-running generation jobs on a backend, polls them until
they finish and keeps their state and history.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	// PersistentPreRunE builds the app once for every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Annotations[skipAppAnnotation] == "true" {
			return nil
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		appInstance, err := app.NewApp(cfg, notify.NewConsole(os.Stderr))
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if appInstance, err := GetAppFromContext(cmd.Context()); err == nil {
			return appInstance.Close()
		}
		return nil
	},
}

// Commands carrying this annotation load their own configuration.
const skipAppAnnotation = "pollster/skip-app"

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

// GetAppFromContext returns the app built by PersistentPreRunE.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check backend, history and redis connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		failed := false
		check := func(name string, fn func() error) {
			if err := fn(); err != nil {
				failed = true
				fmt.Printf("%-8s FAIL  %v\n", name, err)
				return
			}
			fmt.Printf("%-8s ok\n", name)
		}

		check("backend", func() error { return pingBackend(ctx, appInstance) })
		if appInstance.History != nil {
			check("history", func() error { return appInstance.History.Ping(ctx) })
		} else {
			fmt.Printf("%-8s disabled\n", "history")
		}
		if appInstance.Redis != nil {
			check("redis", func() error { return appInstance.Redis.Ping(ctx).Err() })
		}

		if failed {
			return fmt.Errorf("one or more checks failed")
		}
		return nil
	},
}

// pingBackend reports whether the backend answers at all. Any HTTP status
// counts as reachable.
func pingBackend(ctx context.Context, a *app.App) error {
	_, err := a.Client.Do(ctx, &httpclient.Request{Method: http.MethodGet, Path: "/health"})
	if err == nil {
		return nil
	}
	if _, ok := httpclient.AsStatusError(err); ok {
		return nil
	}
	return err
}

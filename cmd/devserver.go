package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pollster/internal/config"
	"pollster/internal/devserver"
	"pollster/internal/polling"
)

var devserverAddr string

// devserverCmd runs a local backend for trying the client without the real one.
var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local backend that speaks the job protocol",
	Annotations: map[string]string{
		skipAppAnnotation: "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		dc := cfg.DevServer

		gen, err := devserver.NewGenerator(cmd.Context(), dc.Generator, devserver.GeneratorKeys{
			OpenaiApiKey: dc.OpenaiApiKey,
			OpenaiModel:  dc.OpenaiModel,
			GoogleApiKey: dc.GoogleApiKey,
			GeminiModel:  dc.GeminiModel,
		})
		if err != nil {
			return err
		}
		if closer, ok := gen.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		srv := devserver.New(gen, polling.DefaultRegistry(), devserver.Options{
			Steps:             dc.Steps,
			Token:             dc.Token,
			RequestsPerSecond: dc.RequestsPerSecond,
		})
		router := srv.Router()

		listenAddr := devserverAddr
		if listenAddr == "" {
			listenAddr = dc.Addr
		}
		log.Infof("Starting dev backend (%s generator, %d steps) on http://%s", gen.Name(), dc.Steps, listenAddr)
		if err := router.Run(listenAddr); err != nil {
			log.Errorf("Failed to run dev backend: %v", err)
			return fmt.Errorf("failed to run dev backend: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().StringVar(&devserverAddr, "addr", "", "Address to listen on (default: devserver.addr)")
}

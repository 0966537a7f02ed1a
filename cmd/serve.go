package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskforce/streamers"
	"taskforce/streamers/cli"
	"taskforce/wsbridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with its websocket bridge",
	Long: `Start a long-running process serving the websocket bridge. Workers poll
for tasks and report results over the bridge; operator consoles submit
plans, audit decisions, and human responses.`,
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		events := streamers.NewLoggingHandler(cli.NewOrchestrationHandler(),
			eng.logger.Named("events"))
		eng.machine.SetEventHandler(events)
		eng.controller.SetEventHandler(events)

		server := wsbridge.NewServer(eng.stores, eng.machine, eng.controller, eng.builder,
			eng.logger.Named("bridge"))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := eng.cfg.Bridge.Listen
		fmt.Printf("Bridge listening on %s\n", addr)
		if err := server.ListenAndServe(ctx, addr); err != nil {
			fmt.Fprintf(os.Stderr, "Bridge stopped: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nShutting down...")
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
}

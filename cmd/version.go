package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`Taskforce %s

Mission orchestration engine for fleets of autonomous agents.

Missions decompose into dependency-ordered tasks, agents are scored and
assigned to the work they fit best, and failures escalate through retries,
audit reviews, and human input.

Get started:
  taskforce mission create   Create a mission
  taskforce mission start    Select a squad lead and go active
  taskforce mission show     Inspect a mission and its task graph
  taskforce serve            Run the engine with its websocket bridge`, Version)
}

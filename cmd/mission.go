package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"taskforce/graph"
	"taskforce/model"
)

var (
	missionDescription     string
	missionObjective       string
	missionAutoOrchestrate bool
	cancelReason           string
)

var missionCmd = &cobra.Command{
	Use:   "mission",
	Short: "Manage missions",
}

var missionCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a mission in draft",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		m, err := eng.controller.Create(args[0], missionDescription, missionObjective, missionAutoOrchestrate)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Mission %s created (draft)\n", m.ID)
	},
}

var missionStartCmd = &cobra.Command{
	Use:   "start [mission_id]",
	Short: "Start a mission, selecting a squad lead",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		m, err := eng.controller.Start(args[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("Mission %s active (squad lead: %s)\n", m.ID, m.SquadLeadID)
	},
}

var missionPauseCmd = &cobra.Command{
	Use:   "pause [mission_id]",
	Short: "Pause an active mission",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		m, err := eng.controller.Pause(args[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("Mission %s paused\n", m.ID)
	},
}

var missionResumeCmd = &cobra.Command{
	Use:   "resume [mission_id]",
	Short: "Resume a paused mission",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		m, err := eng.controller.Resume(args[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("Mission %s active\n", m.ID)
	},
}

var missionCancelCmd = &cobra.Command{
	Use:   "cancel [mission_id]",
	Short: "Cancel a mission",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		m, err := eng.controller.Cancel(args[0], cancelReason)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Mission %s cancelled\n", m.ID)
	},
}

var missionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List missions",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		missions, total, err := eng.stores.Missions.List(50, 0)
		if err != nil {
			fail(err)
		}
		if total == 0 {
			fmt.Println("No missions")
			return
		}
		for _, m := range missions {
			fmt.Printf("%s  %-10s %s\n", m.ID, m.Status, m.Title)
		}
		if total > len(missions) {
			fmt.Printf("... and %d more\n", total-len(missions))
		}
	},
}

var missionShowCmd = &cobra.Command{
	Use:   "show [mission_id]",
	Short: "Show a mission, its tasks, and its dependency graph",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		m, err := eng.stores.Missions.Get(args[0])
		if err != nil {
			fail(err)
		}
		tasks, err := eng.stores.Tasks.ListByMission(m.ID)
		if err != nil {
			fail(err)
		}

		out := renderMission(m, tasks)
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			if rendered, rerr := renderer.Render(out); rerr == nil {
				fmt.Print(rendered)
				return
			}
		}
		fmt.Println(out)
	},
}

// renderMission produces the markdown summary the show command displays.
func renderMission(m *model.Mission, tasks []*model.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Title)
	fmt.Fprintf(&b, "**ID:** %s  \n**Status:** %s\n\n", m.ID, m.Status)
	if m.Objective != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Objective)
	}
	if m.SquadLeadID != "" {
		fmt.Fprintf(&b, "Squad lead: `%s`\n\n", m.SquadLeadID)
	}

	if len(tasks) > 0 {
		analysis := graph.Analyze(tasks)
		b.WriteString("## Tasks\n\n")
		for _, t := range tasks {
			marker := " "
			switch t.Status {
			case model.TaskCompleted:
				marker = "x"
			case model.TaskFailed:
				marker = "!"
			}
			fmt.Fprintf(&b, "- [%s] %s (%s, %s)\n", marker, t.Title, t.Type, t.Status)
			if node := analysis.Node(t.ID); node != nil && !node.CanExecute && t.Status == model.TaskPending {
				fmt.Fprintf(&b, "  - blocked: %s\n", node.BlockingReason)
			}
		}
		b.WriteString("\n")

		if path := analysis.CriticalPath(); len(path) > 1 {
			titles := make([]string, 0, len(path))
			byID := make(map[string]*model.Task, len(tasks))
			for _, t := range tasks {
				byID[t.ID] = t
			}
			for _, id := range path {
				if t, ok := byID[id]; ok {
					titles = append(titles, t.Title)
				}
			}
			fmt.Fprintf(&b, "Critical path: %s\n\n", strings.Join(titles, " > "))
		}
	}

	if len(m.OrchestrationLog) > 0 {
		b.WriteString("## Log\n\n")
		for _, entry := range m.OrchestrationLog {
			fmt.Fprintf(&b, "- %s **%s** %s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Action, entry.Details)
		}
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(missionCmd)
	missionCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	missionCmd.AddCommand(missionCreateCmd, missionStartCmd, missionPauseCmd,
		missionResumeCmd, missionCancelCmd, missionListCmd, missionShowCmd)

	missionCreateCmd.Flags().StringVarP(&missionDescription, "description", "d", "", "Mission description")
	missionCreateCmd.Flags().StringVarP(&missionObjective, "objective", "o", "", "Mission objective")
	missionCreateCmd.Flags().BoolVar(&missionAutoOrchestrate, "auto", false, "Enable auto orchestration")
	missionCancelCmd.Flags().StringVarP(&cancelReason, "reason", "r", "", "Cancellation reason")
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskforce/model"
	"taskforce/scoring"
)

var (
	agentRole         string
	agentCapabilities []string
	scoreTaskType     string
	scoreCapabilities []string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Manage agents",
}

var agentRegisterCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register a new agent and provision its worker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if agentRole == "" {
			fail(fmt.Errorf("--role is required"))
		}
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		agent := &model.Agent{
			Name:         args[0],
			Role:         agentRole,
			Capabilities: agentCapabilities,
			Status:       model.AgentIdle,
			IsReusable:   true,
		}
		if err := eng.stores.Agents.Save(agent); err != nil {
			fail(err)
		}

		runtimeID, err := eng.runtime.Provision(agent.ID, agent.Role)
		if err != nil {
			agent.Status = model.AgentOffline
			eng.stores.Agents.Save(agent)
			fail(fmt.Errorf("agent %s saved but provisioning failed: %w", agent.ID, err))
		}
		agent.RuntimeID = runtimeID
		if err := eng.stores.Agents.Save(agent); err != nil {
			fail(err)
		}
		fmt.Printf("Agent %s registered (%s)\n", agent.ID, agent.Role)
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		agents, err := eng.stores.Agents.List()
		if err != nil {
			fail(err)
		}
		if len(agents) == 0 {
			fmt.Println("No agents")
			return
		}
		for _, a := range agents {
			mission := a.CurrentMissionID
			if mission == "" {
				mission = "-"
			}
			fmt.Printf("%s  %-12s %-8s %5.1f%%  mission=%s  %s\n",
				a.ID, a.Role, a.Status, a.SuccessRate, mission, a.Name)
		}
	},
}

var agentScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score agents for a hypothetical assignment",
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		scorer := scoring.NewScorer(eng.stores.Agents, eng.stores.Tasks,
			scoring.RouteTableFromConfig(eng.cfg))
		results, err := scorer.ScoreAgents(scoring.Criteria{
			TaskType:             model.TaskType(scoreTaskType),
			RequiredCapabilities: scoreCapabilities,
		})
		if err != nil {
			fail(err)
		}
		if len(results) == 0 {
			fmt.Println("No available agents")
			return
		}
		for _, r := range results {
			fmt.Printf("%3d  %-12s %s\n", r.Total, r.Agent.Role, r.Agent.Name)
			if len(r.Reasons) > 0 {
				fmt.Printf("     %s\n", strings.Join(r.Reasons, "; "))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	agentCmd.AddCommand(agentRegisterCmd, agentListCmd, agentScoreCmd)

	agentRegisterCmd.Flags().StringVarP(&agentRole, "role", "r", "", "Agent role (researcher, developer, ...)")
	agentRegisterCmd.Flags().StringSliceVar(&agentCapabilities, "capability", nil, "Agent capability (can be repeated)")
	agentScoreCmd.Flags().StringVarP(&scoreTaskType, "type", "t", "", "Task type to score against")
	agentScoreCmd.Flags().StringSliceVar(&scoreCapabilities, "capability", nil, "Required capability (can be repeated)")
}

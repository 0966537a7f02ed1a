package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskforce/lifecycle"
)

var (
	auditDecision    string
	auditReason      string
	auditTargetRole  string
	auditDescription string
	auditQuestion    string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list [mission_id]",
	Short: "List a mission's tasks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		tasks, err := eng.stores.Tasks.ListByMission(args[0])
		if err != nil {
			fail(err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return
		}
		for _, t := range tasks {
			fmt.Printf("%s  %-24s %-8s %s\n", t.ID, t.Status, t.Priority, t.Title)
		}
	},
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry [task_id]",
	Short: "Queue a failed task for another attempt",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		t, err := eng.machine.Retry(args[0], true)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Task %s pending (attempt %d/%d)\n", t.ID, t.RetryCount, t.MaxRetries)
	},
}

var taskAuditCmd = &cobra.Command{
	Use:   "audit [task_id] [auditor_agent_id]",
	Short: "Create an audit review for a task out of retries",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		review, err := eng.machine.RequestAudit(args[0], args[1])
		if err != nil {
			fail(err)
		}
		fmt.Printf("Audit review %s created\n", review.ID)
	},
}

var taskDecideCmd = &cobra.Command{
	Use:   "decide [task_id]",
	Short: "Apply an audit decision to a failed task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		var decision lifecycle.Decision
		var err2 error
		switch lifecycle.DecisionKind(auditDecision) {
		case lifecycle.DecisionReassign:
			decision, err2 = lifecycle.NewReassign(auditReason, auditTargetRole)
		case lifecycle.DecisionRefine:
			decision, err2 = lifecycle.NewRefine(auditReason, auditDescription)
		case lifecycle.DecisionEscalateHuman:
			decision, err2 = lifecycle.NewEscalateHuman(auditReason, auditQuestion)
		case lifecycle.DecisionRetry:
			decision, err2 = lifecycle.NewRetryDecision(auditReason)
		default:
			err2 = fmt.Errorf("unknown decision %q (reassign, refine, escalate_human, retry)", auditDecision)
		}
		if err2 != nil {
			fail(err2)
		}

		t, err := eng.machine.ApplyAuditDecision(args[0], decision)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Task %s is now %s\n", t.ID, t.Status)
	},
}

var taskAnswerCmd = &cobra.Command{
	Use:   "answer [task_id] [response]",
	Short: "Answer a human-input task",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := newEngine()
		if err != nil {
			fail(err)
		}
		defer eng.Close()

		continuation, err := eng.machine.SubmitHumanResponse(args[0], args[1])
		if err != nil {
			fail(err)
		}
		fmt.Printf("Response recorded, continuation task %s created\n", continuation.ID)
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	taskCmd.AddCommand(taskListCmd, taskRetryCmd, taskAuditCmd, taskDecideCmd, taskAnswerCmd)

	taskDecideCmd.Flags().StringVarP(&auditDecision, "decision", "d", "", "Decision: reassign, refine, escalate_human, retry")
	taskDecideCmd.Flags().StringVarP(&auditReason, "reason", "r", "", "Why the auditor chose this outcome")
	taskDecideCmd.Flags().StringVar(&auditTargetRole, "role", "", "Target role for reassign")
	taskDecideCmd.Flags().StringVar(&auditDescription, "description", "", "Refined description for refine")
	taskDecideCmd.Flags().StringVar(&auditQuestion, "question", "", "Question for escalate_human")
	taskDecideCmd.MarkFlagRequired("decision")
	taskDecideCmd.MarkFlagRequired("reason")
}

package lifecycle_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskforce/lifecycle"
	"taskforce/model"
	"taskforce/store"
)

var _ = Describe("Machine", func() {
	var (
		machine  *lifecycle.Machine
		bundle   *store.Bundle
		recorder *settledRecorder
	)

	BeforeEach(func() {
		machine, bundle, recorder = newMachine()
	})

	Describe("Start", func() {
		It("moves a pending task in progress and stamps startedAt", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t", Status: model.TaskPending})

			started, err := machine.Start(t.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(started.Status).To(Equal(model.TaskInProgress))
			Expect(started.StartedAt).NotTo(BeNil())
		})

		It("marks the assigned agent active on its mission", func() {
			agent := saveAgent(bundle, &model.Agent{Name: "a", Role: "researcher", Status: model.AgentIdle})
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t", Status: model.TaskPending, AssignedTo: agent.ID})

			_, err := machine.Start(t.ID)
			Expect(err).NotTo(HaveOccurred())

			got, err := bundle.Agents.Get(agent.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.AgentActive))
			Expect(got.CurrentMissionID).To(Equal("m1"))
		})

		It("rejects starting a non-pending task", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t", Status: model.TaskCompleted})
			_, err := machine.Start(t.ID)
			Expect(err).To(MatchError(model.ErrStateConflict))
		})
	})

	Describe("Complete", func() {
		It("stores the output and stamps completion", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t", Status: model.TaskInProgress})

			done, err := machine.Complete(t.ID, map[string]any{"answer": "42"})
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(model.TaskCompleted))
			Expect(done.Output).To(HaveKeyWithValue("answer", "42"))
			Expect(done.CompletedAt).NotTo(BeNil())
		})

		It("updates the agent track record with the duration", func() {
			agent := saveAgent(bundle, &model.Agent{Name: "a", Role: "researcher", Status: model.AgentActive})
			started := time.Date(2025, 6, 1, 11, 58, 0, 0, time.UTC)
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t",
				Status: model.TaskInProgress, AssignedTo: agent.ID, StartedAt: &started})

			_, err := machine.Complete(t.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			got, err := bundle.Agents.Get(agent.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.TasksCompleted).To(Equal(1))
			Expect(got.TotalDuration).To(Equal(2 * time.Minute))
			Expect(got.SuccessRate).To(BeNumerically("==", 100))
		})

		It("notifies the mission of the settled task", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t", Status: model.TaskInProgress})
			_, err := machine.Complete(t.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.missions).To(Equal([]string{"m1"}))
		})

		It("rejects completing a task that is not in progress", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t", Status: model.TaskPending})
			_, err := machine.Complete(t.ID, nil)
			Expect(err).To(MatchError(model.ErrStateConflict))
		})
	})

	Describe("Fail", func() {
		It("records the reason and appends to retry history", func() {
			agent := saveAgent(bundle, &model.Agent{Name: "a", Role: "researcher", Status: model.AgentActive})
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t",
				Status: model.TaskInProgress, AssignedTo: agent.ID, RetryCount: 1})

			failed, err := machine.Fail(t.ID, agent.ID, "network unreachable")
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.Status).To(Equal(model.TaskFailed))
			Expect(failed.Error).To(Equal("network unreachable"))
			Expect(failed.RetryHistory).To(HaveLen(1))
			Expect(failed.RetryHistory[0].Attempt).To(Equal(2))
			Expect(failed.RetryHistory[0].AgentID).To(Equal(agent.ID))

			got, err := bundle.Agents.Get(agent.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.TasksFailed).To(Equal(1))
		})

		It("keeps the failed status recoverable", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t", Status: model.TaskInProgress})
			failed, err := machine.Fail(t.ID, "", "boom")
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.IsTerminal()).To(BeFalse())
			Expect(failed.CanRetry()).To(BeTrue())
		})
	})

	Describe("Retry", func() {
		It("consumes one unit of retry budget", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t",
				Status: model.TaskFailed, Error: "boom", AssignedTo: "a1"})

			retried, err := machine.Retry(t.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(retried.Status).To(Equal(model.TaskPending))
			Expect(retried.RetryCount).To(Equal(1))
			Expect(retried.Error).To(BeEmpty())
			Expect(retried.AssignedTo).To(Equal("a1"))
		})

		It("optionally clears the assignment", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t",
				Status: model.TaskFailed, AssignedTo: "a1"})

			retried, err := machine.Retry(t.ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(retried.AssignedTo).To(BeEmpty())
		})

		It("refuses once the budget is exhausted", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t",
				Status: model.TaskFailed, RetryCount: 3, MaxRetries: 3})
			_, err := machine.Retry(t.ID, false)
			Expect(err).To(MatchError(model.ErrStateConflict))
		})

		It("refuses while an audit review is in flight", func() {
			t := saveTask(bundle, &model.Task{MissionID: "m1", Title: "t",
				Status: model.TaskFailed, RetryCount: 1, AuditorReviewID: "rev"})
			_, err := machine.Retry(t.ID, false)
			Expect(err).To(MatchError(model.ErrStateConflict))
		})
	})

	Describe("ClaimNext", func() {
		It("claims the highest-priority executable task", func() {
			base := time.Now().Add(-time.Hour)
			saveTask(bundle, &model.Task{MissionID: "m1", Title: "low", Status: model.TaskPending,
				Priority: model.PriorityLow, CreatedAt: base})
			want := saveTask(bundle, &model.Task{MissionID: "m1", Title: "high", Status: model.TaskPending,
				Priority: model.PriorityHigh, CreatedAt: base.Add(time.Minute)})

			claimed, err := machine.ClaimNext("m1", "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).NotTo(BeNil())
			Expect(claimed.ID).To(Equal(want.ID))
			Expect(claimed.Status).To(Equal(model.TaskInProgress))
			Expect(claimed.AssignedTo).To(Equal("a1"))
		})

		It("skips tasks with unmet dependencies", func() {
			dep := saveTask(bundle, &model.Task{MissionID: "m1", Title: "dep", Status: model.TaskPending,
				Priority: model.PriorityHigh})
			saveTask(bundle, &model.Task{MissionID: "m1", Title: "blocked", Status: model.TaskPending,
				Priority: model.PriorityHigh, Dependencies: []string{dep.ID}})

			claimed, err := machine.ClaimNext("m1", "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed.ID).To(Equal(dep.ID))
		})

		It("prefers tasks already assigned to the polling agent", func() {
			saveTask(bundle, &model.Task{MissionID: "m1", Title: "anyone", Status: model.TaskPending,
				Priority: model.PriorityHigh})
			mine := saveTask(bundle, &model.Task{MissionID: "m1", Title: "mine", Status: model.TaskPending,
				Priority: model.PriorityLow, AssignedTo: "a1"})

			claimed, err := machine.ClaimNext("m1", "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed.ID).To(Equal(mine.ID))
		})

		It("never claims tasks assigned to another agent", func() {
			saveTask(bundle, &model.Task{MissionID: "m1", Title: "theirs", Status: model.TaskPending,
				AssignedTo: "a2"})

			claimed, err := machine.ClaimNext("m1", "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeNil())
		})

		It("returns nil when nothing is claimable", func() {
			saveTask(bundle, &model.Task{MissionID: "m1", Title: "done", Status: model.TaskCompleted})
			claimed, err := machine.ClaimNext("m1", "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed).To(BeNil())
		})
	})
})

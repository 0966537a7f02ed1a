package mission_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskforce/mission"
	"taskforce/model"
	"taskforce/runtime"
	"taskforce/store"
)

var _ = Describe("Controller", func() {
	var (
		controller *mission.Controller
		bundle     *store.Bundle
		rt         *runtime.MemoryRuntime
	)

	BeforeEach(func() {
		controller, _, bundle, rt = newController()
	})

	// activeMission creates a mission and starts it with a pre-seeded lead.
	activeMission := func() (*model.Mission, *model.Agent) {
		lead := saveAgent(bundle, &model.Agent{Name: "lead-1", Role: model.SquadLeadRole,
			Status: model.AgentIdle, IsReusable: true})
		m, err := controller.Create("ship it", "", "", false)
		Expect(err).NotTo(HaveOccurred())
		m, err = controller.Start(m.ID)
		Expect(err).NotTo(HaveOccurred())
		return m, lead
	}

	Describe("Create", func() {
		It("stores a draft mission with a creation log entry", func() {
			m, err := controller.Create("ship it", "desc", "goal", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ID).NotTo(BeEmpty())
			Expect(m.Status).To(Equal(model.MissionDraft))
			Expect(m.AutoOrchestrate).To(BeTrue())
			Expect(lastLog(m).Action).To(Equal("created"))
		})

		It("requires a title", func() {
			_, err := controller.Create("", "", "", false)
			Expect(err).To(MatchError(model.ErrValidation))
		})
	})

	Describe("Start", func() {
		It("selects a squad lead and activates the mission", func() {
			m, lead := activeMission()
			Expect(m.Status).To(Equal(model.MissionActive))
			Expect(m.SquadLeadID).To(Equal(lead.ID))
			Expect(m.StartedAt).NotTo(BeNil())
			Expect(lastLog(m).Action).To(Equal("started"))

			got, err := bundle.Agents.Get(lead.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.AgentActive))
			Expect(got.CurrentMissionID).To(Equal(m.ID))
		})

		It("refuses to start a completed mission", func() {
			m, _ := activeMission()
			_, err := controller.Complete(m.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = controller.Start(m.ID)
			Expect(err).To(MatchError(model.ErrStateConflict))
		})
	})

	Describe("Pause and Resume", func() {
		It("pauses workers and resumes them, keeping the original start time", func() {
			m, lead := activeMission()
			started := m.StartedAt

			got, err := bundle.Agents.Get(lead.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.RuntimeID).To(BeEmpty())

			m, err = controller.Pause(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Status).To(Equal(model.MissionPaused))
			Expect(lastLog(m).Action).To(Equal("paused"))

			m, err = controller.Resume(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Status).To(Equal(model.MissionActive))
			Expect(m.StartedAt).To(Equal(started))
			Expect(lastLog(m).Action).To(Equal("resumed"))

			// The lead is still attached, not re-selected.
			Expect(m.SquadLeadID).To(Equal(lead.ID))
		})

		It("only resumes paused missions", func() {
			m, _ := activeMission()
			_, err := controller.Resume(m.ID)
			Expect(err).To(MatchError(model.ErrStateConflict))
		})
	})

	Describe("Cancel", func() {
		It("finalizes and records the prior status with the reason", func() {
			m, _ := activeMission()
			m, err := controller.Cancel(m.ID, "obsolete objective")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Status).To(Equal(model.MissionCompleted))
			Expect(m.CompletedAt).NotTo(BeNil())

			var cancelled *model.LogEntry
			for i := range m.OrchestrationLog {
				if m.OrchestrationLog[i].Action == "cancelled" {
					cancelled = &m.OrchestrationLog[i]
				}
			}
			Expect(cancelled).NotTo(BeNil())
			Expect(cancelled.Details).To(Equal("was active: obsolete objective"))
		})

		It("cannot cancel twice", func() {
			m, _ := activeMission()
			_, err := controller.Cancel(m.ID, "first")
			Expect(err).NotTo(HaveOccurred())
			_, err = controller.Cancel(m.ID, "second")
			Expect(err).To(MatchError(model.ErrStateConflict))
		})
	})

	Describe("CheckCompletion", func() {
		var m *model.Mission

		BeforeEach(func() {
			m, _ = activeMission()
		})

		It("is false with no tasks", func() {
			done, err := controller.CheckCompletion(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
		})

		It("is true when every task completed", func() {
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a", Status: model.TaskCompleted})
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "b", Status: model.TaskCompleted})
			done, err := controller.CheckCompletion(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
		})

		It("counts an exhausted failure as settled", func() {
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a", Status: model.TaskCompleted})
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "b",
				Status: model.TaskFailed, RetryCount: 3, MaxRetries: 3})
			done, err := controller.CheckCompletion(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
		})

		It("counts a failure with retry budget left as settled", func() {
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a",
				Status: model.TaskFailed, RetryCount: 0, MaxRetries: 3})
			done, err := controller.CheckCompletion(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
		})

		It("waits while an audit review task is open", func() {
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a",
				Status: model.TaskFailed, RetryCount: 3, MaxRetries: 3,
				AuditorReviewID: "review-1"})
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "review a",
				Type: model.TypeAuditReview, Status: model.TaskPending})
			done, err := controller.CheckCompletion(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
		})

		It("waits while the mission is parked on human input", func() {
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a", Status: model.TaskCompleted})
			m.AwaitingHumanTaskID = "human-1"
			done, err := controller.CheckCompletion(m)
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
		})
	})

	Describe("TaskSettled", func() {
		It("completes the mission once everything settles", func() {
			m, lead := activeMission()
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a", Status: model.TaskCompleted})
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "b",
				Status: model.TaskFailed, RetryCount: 3, MaxRetries: 3})

			Expect(controller.TaskSettled(m.ID)).To(Succeed())

			got, err := bundle.Missions.Get(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.MissionCompleted))
			Expect(got.CompletedAt).NotTo(BeNil())
			Expect(got.Stats).NotTo(BeNil())
			Expect(got.Stats.TotalTasks).To(Equal(2))
			Expect(got.Stats.CompletedTasks).To(Equal(1))
			Expect(got.Stats.FailedTasks).To(Equal(1))
			Expect(lastLog(got).Details).To(Equal("all tasks settled"))

			// The reusable lead went back to the pool with credit.
			released, err := bundle.Agents.Get(lead.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(released.Status).To(Equal(model.AgentIdle))
			Expect(released.CurrentMissionID).To(BeEmpty())
			Expect(released.TotalMissionsCompleted).To(Equal(1))
			Expect(released.MissionHistory).To(ContainElement(m.ID))
		})

		It("completes the mission when the last task fails with budget left", func() {
			m, _ := activeMission()
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a", Status: model.TaskCompleted})
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "b", Status: model.TaskCompleted})
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "c",
				Status: model.TaskFailed, RetryCount: 0, MaxRetries: 3})

			Expect(controller.TaskSettled(m.ID)).To(Succeed())

			got, err := bundle.Missions.Get(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.MissionCompleted))
		})

		It("leaves unfinished missions active", func() {
			m, _ := activeMission()
			saveTask(bundle, &model.Task{MissionID: m.ID, Title: "a", Status: model.TaskPending})

			Expect(controller.TaskSettled(m.ID)).To(Succeed())

			got, err := bundle.Missions.Get(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.MissionActive))
		})

		It("ignores non-active missions", func() {
			m, err := controller.Create("draft", "", "", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.TaskSettled(m.ID)).To(Succeed())

			got, err := bundle.Missions.Get(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.MissionDraft))
		})
	})

	Describe("finalization of non-reusable agents", func() {
		It("deactivates them and stops their workers", func() {
			m, _ := activeMission()
			runtimeID, err := rt.Provision("agent-x", "developer")
			Expect(err).NotTo(HaveOccurred())
			disposable := saveAgent(bundle, &model.Agent{Name: "one-shot", Role: "developer",
				Status: model.AgentActive, IsReusable: false,
				CurrentMissionID: m.ID, RuntimeID: runtimeID})

			_, err = controller.Complete(m.ID)
			Expect(err).NotTo(HaveOccurred())

			got, err := bundle.Agents.Get(disposable.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.AgentInactive))
			Expect(got.CurrentMissionID).To(BeEmpty())

			state, err := rt.Status(runtimeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(Equal(runtime.StateExited))
		})
	})
})

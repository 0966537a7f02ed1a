package lifecycle_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskforce/lifecycle"
	"taskforce/model"
	"taskforce/store"
)

var _ = Describe("SubmitHumanResponse", func() {
	var (
		machine  *lifecycle.Machine
		bundle   *store.Bundle
		recorder *settledRecorder
		mission  *model.Mission
		failed   *model.Task
		human    *model.Task
	)

	BeforeEach(func() {
		machine, bundle, recorder = newMachine()
		mission = saveMission(bundle, &model.Mission{Title: "m", Status: model.MissionActive})
		failed = saveTask(bundle, &model.Task{MissionID: mission.ID, Title: "blocked",
			Type: model.TypeCodeExecution, Status: model.TaskAwaitingHuman,
			AssignedTo: "agent-7", RetryCount: 3, MaxRetries: 3})
		human = saveTask(bundle, &model.Task{MissionID: mission.ID, Title: "need creds",
			Type: model.TypeHumanInput, Status: model.TaskAwaitingHuman,
			Input: map[string]any{"parentTaskId": failed.ID, "question": "which account?"}})
		mission.AwaitingHumanTaskID = human.ID
		Expect(bundle.Missions.Save(mission)).To(Succeed())
	})

	It("creates a continuation task for the original agent", func() {
		continuation, err := machine.SubmitHumanResponse(human.ID, "use the staging account")
		Expect(err).NotTo(HaveOccurred())
		Expect(continuation.Type).To(Equal(model.TypeMissionAnalysis))
		Expect(continuation.Status).To(Equal(model.TaskPending))
		Expect(continuation.Priority).To(Equal(model.PriorityHigh))
		Expect(continuation.AssignedTo).To(Equal("agent-7"))
		Expect(continuation.Input).To(HaveKeyWithValue("humanResponse", "use the staging account"))
		Expect(continuation.Input).To(HaveKeyWithValue("humanTaskId", human.ID))
		Expect(continuation.Input).To(HaveKeyWithValue("failedTaskId", failed.ID))
	})

	It("completes the human task with the response as output", func() {
		continuation, err := machine.SubmitHumanResponse(human.ID, "use the staging account")
		Expect(err).NotTo(HaveOccurred())

		got, err := bundle.Tasks.Get(human.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(model.TaskCompleted))
		Expect(got.Output).To(HaveKeyWithValue("humanResponse", "use the staging account"))
		Expect(got.ContinuationTaskID).To(Equal(continuation.ID))
	})

	It("supersedes the parked task instead of re-running it", func() {
		continuation, err := machine.SubmitHumanResponse(human.ID, "skip that step")
		Expect(err).NotTo(HaveOccurred())

		got, err := bundle.Tasks.Get(failed.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(model.TaskCompleted))
		Expect(got.ContinuationTaskID).To(Equal(continuation.ID))
	})

	It("clears the mission's awaiting-human marker and logs", func() {
		_, err := machine.SubmitHumanResponse(human.ID, "go ahead")
		Expect(err).NotTo(HaveOccurred())

		got, err := bundle.Missions.Get(mission.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.AwaitingHumanTaskID).To(BeEmpty())
		last := got.OrchestrationLog[len(got.OrchestrationLog)-1]
		Expect(got.TaskIDs).To(HaveLen(len(mission.TaskIDs) + 1))
		Expect(last.Action).To(Equal("human_response"))

		Expect(recorder.missions).To(ContainElement(mission.ID))
	})

	It("works without a linked failed task", func() {
		orphan := saveTask(bundle, &model.Task{MissionID: mission.ID, Title: "ask",
			Type: model.TypeHumanInput, Status: model.TaskAwaitingHuman})

		continuation, err := machine.SubmitHumanResponse(orphan.ID, "answered")
		Expect(err).NotTo(HaveOccurred())
		Expect(continuation.AssignedTo).To(BeEmpty())
		Expect(continuation.Input).NotTo(HaveKey("failedTaskId"))
	})

	It("rejects non-human tasks", func() {
		_, err := machine.SubmitHumanResponse(failed.ID, "nope")
		Expect(err).To(MatchError(model.ErrValidation))
	})

	It("rejects an already-answered task", func() {
		_, err := machine.SubmitHumanResponse(human.ID, "first")
		Expect(err).NotTo(HaveOccurred())
		_, err = machine.SubmitHumanResponse(human.ID, "second")
		Expect(err).To(MatchError(model.ErrStateConflict))
	})
})

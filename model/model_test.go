package model_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskforce/model"
)

var _ = Describe("Mission transitions", func() {
	It("allows draft to active", func() {
		m := &model.Mission{Status: model.MissionDraft}
		Expect(m.CanTransitionTo(model.MissionActive)).To(BeTrue())
	})

	It("allows active to paused and back", func() {
		m := &model.Mission{Status: model.MissionActive}
		Expect(m.CanTransitionTo(model.MissionPaused)).To(BeTrue())

		m.Status = model.MissionPaused
		Expect(m.CanTransitionTo(model.MissionActive)).To(BeTrue())
	})

	It("rejects pausing a draft", func() {
		m := &model.Mission{Status: model.MissionDraft}
		Expect(m.CanTransitionTo(model.MissionPaused)).To(BeFalse())
	})

	It("allows completing from any live status", func() {
		for _, status := range []model.MissionStatus{model.MissionDraft, model.MissionActive, model.MissionPaused} {
			m := &model.Mission{Status: status}
			Expect(m.CanTransitionTo(model.MissionCompleted)).To(BeTrue())
		}
	})

	It("treats completed as terminal", func() {
		m := &model.Mission{Status: model.MissionCompleted}
		Expect(m.CanTransitionTo(model.MissionActive)).To(BeFalse())
		Expect(m.CanTransitionTo(model.MissionPaused)).To(BeFalse())
		Expect(m.CanTransitionTo(model.MissionCompleted)).To(BeFalse())
	})

	It("never returns to draft", func() {
		m := &model.Mission{Status: model.MissionActive}
		Expect(m.CanTransitionTo(model.MissionDraft)).To(BeFalse())
	})

	It("appends log entries in order", func() {
		m := &model.Mission{}
		t0 := time.Now()
		m.AppendLog(t0, "created", "first")
		m.AppendLog(t0.Add(time.Second), "started", "")
		Expect(m.OrchestrationLog).To(HaveLen(2))
		Expect(m.OrchestrationLog[0].Action).To(Equal("created"))
		Expect(m.OrchestrationLog[1].Action).To(Equal("started"))
	})
})

var _ = Describe("Task retry and audit predicates", func() {
	It("can retry a failed task with budget left", func() {
		t := &model.Task{Status: model.TaskFailed, RetryCount: 2, MaxRetries: 3}
		Expect(t.CanRetry()).To(BeTrue())
		Expect(t.NeedsAudit()).To(BeFalse())
	})

	It("cannot retry once the budget is spent", func() {
		t := &model.Task{Status: model.TaskFailed, RetryCount: 3, MaxRetries: 3}
		Expect(t.CanRetry()).To(BeFalse())
		Expect(t.NeedsAudit()).To(BeTrue())
	})

	It("cannot retry while under audit", func() {
		t := &model.Task{Status: model.TaskFailed, RetryCount: 1, MaxRetries: 3, AuditorReviewID: "rev-1"}
		Expect(t.CanRetry()).To(BeFalse())
		Expect(t.NeedsAudit()).To(BeFalse())
	})

	It("only treats completed as terminal", func() {
		Expect((&model.Task{Status: model.TaskCompleted}).IsTerminal()).To(BeTrue())
		Expect((&model.Task{Status: model.TaskFailed}).IsTerminal()).To(BeFalse())
		Expect((&model.Task{Status: model.TaskInProgress}).IsTerminal()).To(BeFalse())
	})
})

var _ = Describe("Priority ranking", func() {
	It("orders high above medium above low", func() {
		Expect(model.PriorityHigh.Rank()).To(BeNumerically(">", model.PriorityMedium.Rank()))
		Expect(model.PriorityMedium.Rank()).To(BeNumerically(">", model.PriorityLow.Rank()))
	})

	It("sorts unknown priorities below low", func() {
		Expect(model.Priority("urgent?").Rank()).To(BeNumerically("<", model.PriorityLow.Rank()))
	})
})

var _ = Describe("Agent track record", func() {
	It("computes success rate from outcomes", func() {
		a := &model.Agent{}
		a.RecordTaskCompleted(time.Minute)
		a.RecordTaskCompleted(3 * time.Minute)
		a.RecordTaskFailed()

		Expect(a.TasksCompleted).To(Equal(2))
		Expect(a.TasksFailed).To(Equal(1))
		Expect(a.SuccessRate).To(BeNumerically("~", 66.67, 0.01))
	})

	It("tracks rolling average duration", func() {
		a := &model.Agent{}
		a.RecordTaskCompleted(time.Minute)
		a.RecordTaskCompleted(3 * time.Minute)
		Expect(a.AverageDuration).To(Equal(2 * time.Minute))
	})

	It("reports zero success rate with no history", func() {
		a := &model.Agent{}
		Expect(a.SuccessRate).To(BeZero())
	})

	It("finds capabilities", func() {
		a := &model.Agent{Capabilities: []string{"search", "summarize"}}
		Expect(a.HasCapability("search")).To(BeTrue())
		Expect(a.HasCapability("code")).To(BeFalse())
	})

	It("returns the most recent completed mission", func() {
		a := &model.Agent{}
		Expect(a.LastMissionID()).To(BeEmpty())
		a.MissionHistory = []string{"m1", "m2"}
		Expect(a.LastMissionID()).To(Equal("m2"))
	})
})

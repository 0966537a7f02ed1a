package store_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskforce/model"
	"taskforce/store"
)

var _ = Describe("MissionStore", func() {
	forEachBackend(func(newBundle func() (*store.Bundle, func())) {
		var (
			bundle  *store.Bundle
			cleanup func()
		)

		BeforeEach(func() {
			bundle, cleanup = newBundle()
		})

		AfterEach(func() {
			cleanup()
		})

		It("assigns an id and created timestamp on first save", func() {
			m := &model.Mission{Title: "recon", Status: model.MissionDraft}
			Expect(bundle.Missions.Save(m)).To(Succeed())
			Expect(m.ID).NotTo(BeEmpty())
			Expect(m.CreatedAt).NotTo(BeZero())
		})

		It("round-trips a mission with nested fields", func() {
			started := time.Now().UTC().Truncate(time.Second)
			m := &model.Mission{
				Title:       "recon",
				Status:      model.MissionActive,
				SquadLeadID: "lead-1",
				TaskIDs:     []string{"t1", "t2"},
				StartedAt:   &started,
				Stats:       &model.MissionStats{TotalTasks: 2, CompletedTasks: 1},
			}
			m.AppendLog(started, "started", "kickoff")
			Expect(bundle.Missions.Save(m)).To(Succeed())

			got, err := bundle.Missions.Get(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("recon"))
			Expect(got.SquadLeadID).To(Equal("lead-1"))
			Expect(got.TaskIDs).To(Equal([]string{"t1", "t2"}))
			Expect(got.OrchestrationLog).To(HaveLen(1))
			Expect(got.OrchestrationLog[0].Action).To(Equal("started"))
			Expect(got.StartedAt).NotTo(BeNil())
			Expect(got.Stats.TotalTasks).To(Equal(2))
		})

		It("replaces a mission when saved again", func() {
			m := &model.Mission{Title: "v1", Status: model.MissionDraft}
			Expect(bundle.Missions.Save(m)).To(Succeed())

			m.Title = "v2"
			m.Status = model.MissionActive
			Expect(bundle.Missions.Save(m)).To(Succeed())

			got, err := bundle.Missions.Get(m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("v2"))
			Expect(got.Status).To(Equal(model.MissionActive))

			_, total, err := bundle.Missions.List(10, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
		})

		It("returns ErrNotFound for unknown ids", func() {
			_, err := bundle.Missions.Get("missing")
			Expect(err).To(MatchError(model.ErrNotFound))
		})

		It("deletes missions", func() {
			m := &model.Mission{Title: "gone", Status: model.MissionDraft}
			Expect(bundle.Missions.Save(m)).To(Succeed())
			Expect(bundle.Missions.Delete(m.ID)).To(Succeed())

			_, err := bundle.Missions.Get(m.ID)
			Expect(err).To(MatchError(model.ErrNotFound))
		})

		It("pages newest first with a stable total", func() {
			base := time.Now().Add(-time.Hour)
			for i, title := range []string{"m1", "m2", "m3", "m4", "m5"} {
				m := &model.Mission{Title: title, Status: model.MissionDraft,
					CreatedAt: base.Add(time.Duration(i) * time.Minute)}
				Expect(bundle.Missions.Save(m)).To(Succeed())
			}

			missions, total, err := bundle.Missions.List(2, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(5))
			Expect(missions).To(HaveLen(2))
			Expect(missions[0].Title).To(Equal("m5"))
			Expect(missions[1].Title).To(Equal("m4"))

			missions, total, err = bundle.Missions.List(2, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(5))
			Expect(missions).To(HaveLen(1))
			Expect(missions[0].Title).To(Equal("m1"))

			missions, total, err = bundle.Missions.List(10, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(5))
			Expect(missions).To(BeEmpty())
		})
	})
})

var _ = Describe("TaskStore", func() {
	forEachBackend(func(newBundle func() (*store.Bundle, func())) {
		var (
			bundle  *store.Bundle
			cleanup func()
		)

		BeforeEach(func() {
			bundle, cleanup = newBundle()
		})

		AfterEach(func() {
			cleanup()
		})

		saveTask := func(t *model.Task) *model.Task {
			Expect(bundle.Tasks.Save(t)).To(Succeed())
			return t
		}

		It("round-trips a task with retry history and payloads", func() {
			t := &model.Task{
				MissionID:    "m1",
				Title:        "fetch sources",
				Type:         model.TypeWebSearch,
				Status:       model.TaskFailed,
				AssignedTo:   "a1",
				Dependencies: []string{"dep-1"},
				Priority:     model.PriorityHigh,
				RetryCount:   1,
				MaxRetries:   3,
				RetryHistory: []model.RetryAttempt{{Attempt: 1, Error: "timeout", Timestamp: time.Now().UTC(), AgentID: "a1"}},
				Input:        map[string]any{"query": "golang"},
				Output:       map[string]any{"count": float64(3)},
				Error:        "timeout",
			}
			saveTask(t)

			got, err := bundle.Tasks.Get(t.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Type).To(Equal(model.TypeWebSearch))
			Expect(got.Dependencies).To(Equal([]string{"dep-1"}))
			Expect(got.RetryHistory).To(HaveLen(1))
			Expect(got.RetryHistory[0].Error).To(Equal("timeout"))
			Expect(got.Input).To(HaveKeyWithValue("query", "golang"))
			Expect(got.Output).To(HaveKeyWithValue("count", float64(3)))
		})

		It("lists a mission's tasks in creation order", func() {
			base := time.Now().Add(-time.Hour)
			saveTask(&model.Task{MissionID: "m1", Title: "b", Status: model.TaskPending, CreatedAt: base.Add(time.Minute)})
			saveTask(&model.Task{MissionID: "m1", Title: "a", Status: model.TaskPending, CreatedAt: base})
			saveTask(&model.Task{MissionID: "m2", Title: "other", Status: model.TaskPending, CreatedAt: base})

			tasks, err := bundle.Tasks.ListByMission("m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(2))
			Expect(tasks[0].Title).To(Equal("a"))
			Expect(tasks[1].Title).To(Equal("b"))
		})

		It("filters an agent's tasks by status", func() {
			saveTask(&model.Task{MissionID: "m1", Title: "t1", Status: model.TaskPending, AssignedTo: "a1"})
			saveTask(&model.Task{MissionID: "m1", Title: "t2", Status: model.TaskInProgress, AssignedTo: "a1"})
			saveTask(&model.Task{MissionID: "m1", Title: "t3", Status: model.TaskCompleted, AssignedTo: "a1"})
			saveTask(&model.Task{MissionID: "m1", Title: "t4", Status: model.TaskPending, AssignedTo: "a2"})

			tasks, err := bundle.Tasks.ListByAgent("a1", model.TaskPending, model.TaskInProgress)
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(2))

			all, err := bundle.Tasks.ListByAgent("a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
		})

		It("orders pending tasks by priority then age", func() {
			base := time.Now().Add(-time.Hour)
			saveTask(&model.Task{MissionID: "m1", Title: "low", Status: model.TaskPending,
				Priority: model.PriorityLow, CreatedAt: base})
			saveTask(&model.Task{MissionID: "m1", Title: "high-new", Status: model.TaskPending,
				Priority: model.PriorityHigh, CreatedAt: base.Add(2 * time.Minute)})
			saveTask(&model.Task{MissionID: "m1", Title: "high-old", Status: model.TaskPending,
				Priority: model.PriorityHigh, CreatedAt: base.Add(time.Minute)})
			saveTask(&model.Task{MissionID: "m1", Title: "done", Status: model.TaskCompleted,
				Priority: model.PriorityHigh, CreatedAt: base})

			tasks, err := bundle.Tasks.ListPendingByPriority("m1")
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(3))
			Expect(tasks[0].Title).To(Equal("high-old"))
			Expect(tasks[1].Title).To(Equal("high-new"))
			Expect(tasks[2].Title).To(Equal("low"))
		})
	})
})

var _ = Describe("AgentStore", func() {
	forEachBackend(func(newBundle func() (*store.Bundle, func())) {
		var (
			bundle  *store.Bundle
			cleanup func()
		)

		BeforeEach(func() {
			bundle, cleanup = newBundle()
		})

		AfterEach(func() {
			cleanup()
		})

		It("round-trips an agent with history and metrics", func() {
			a := &model.Agent{
				Name:                   "scout",
				Role:                   "researcher",
				Capabilities:           []string{"search"},
				Status:                 model.AgentIdle,
				IsReusable:             true,
				MissionHistory:         []string{"m1"},
				TotalMissionsCompleted: 1,
				TasksCompleted:         4,
				TasksFailed:            1,
				SuccessRate:            80,
				TotalDuration:          20 * time.Minute,
				AverageDuration:        5 * time.Minute,
			}
			Expect(bundle.Agents.Save(a)).To(Succeed())

			got, err := bundle.Agents.Get(a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Role).To(Equal("researcher"))
			Expect(got.Capabilities).To(Equal([]string{"search"}))
			Expect(got.IsReusable).To(BeTrue())
			Expect(got.MissionHistory).To(Equal([]string{"m1"}))
			Expect(got.SuccessRate).To(BeNumerically("==", 80))
			Expect(got.AverageDuration).To(Equal(5 * time.Minute))
		})

		It("filters agents by status", func() {
			base := time.Now().Add(-time.Hour)
			for i, spec := range []struct {
				name   string
				status model.AgentStatus
			}{
				{"idle-1", model.AgentIdle},
				{"active-1", model.AgentActive},
				{"offline-1", model.AgentOffline},
			} {
				a := &model.Agent{Name: spec.name, Role: "researcher", Status: spec.status,
					CreatedAt: base.Add(time.Duration(i) * time.Minute)}
				Expect(bundle.Agents.Save(a)).To(Succeed())
			}

			agents, err := bundle.Agents.ListByStatus(model.AgentIdle, model.AgentActive)
			Expect(err).NotTo(HaveOccurred())
			Expect(agents).To(HaveLen(2))
			Expect(agents[0].Name).To(Equal("idle-1"))
			Expect(agents[1].Name).To(Equal("active-1"))
		})
	})
})

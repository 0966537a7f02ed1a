package graph_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"taskforce/graph"
	"taskforce/model"
)

func task(id string, status model.TaskStatus, deps ...string) *model.Task {
	return &model.Task{ID: id, Title: id, Status: status, Dependencies: deps}
}

var _ = Describe("Analyze", func() {
	It("assigns level 0 to independent tasks", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending),
			task("b", model.TaskPending),
		})
		Expect(a.Node("a").Level).To(Equal(0))
		Expect(a.Node("b").Level).To(Equal(0))
	})

	It("computes levels as one past the deepest dependency", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskCompleted),
			task("b", model.TaskPending, "a"),
			task("c", model.TaskPending, "a", "b"),
			task("d", model.TaskPending, "c"),
		})
		Expect(a.Node("a").Level).To(Equal(0))
		Expect(a.Node("b").Level).To(Equal(1))
		Expect(a.Node("c").Level).To(Equal(2))
		Expect(a.Node("d").Level).To(Equal(3))
	})

	It("marks pending tasks with completed dependencies executable", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskCompleted),
			task("b", model.TaskPending, "a"),
			task("c", model.TaskPending, "b"),
		})

		Expect(a.Node("b").CanExecute).To(BeTrue())
		Expect(a.Node("b").BlockingReason).To(BeEmpty())

		Expect(a.Node("c").CanExecute).To(BeFalse())
		Expect(a.Node("c").BlockingReason).To(ContainSubstring("waiting on 1 dependencies"))
		Expect(a.Node("c").BlockingReason).To(ContainSubstring("b (pending)"))
	})

	It("never marks non-pending tasks executable", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskInProgress),
			task("b", model.TaskFailed),
		})
		Expect(a.Node("a").CanExecute).To(BeFalse())
		Expect(a.Node("b").CanExecute).To(BeFalse())
	})

	It("treats dependencies outside the set as unmet", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending, "ghost"),
		})
		Expect(a.Node("a").CanExecute).To(BeFalse())
		Expect(a.Node("a").BlockingReason).To(ContainSubstring("ghost (missing)"))
	})

	It("partitions pending tasks into executable and blocked", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskCompleted),
			task("b", model.TaskPending, "a"),
			task("c", model.TaskPending, "b"),
			task("d", model.TaskInProgress),
		})

		executable := a.ExecutableTasks()
		Expect(executable).To(HaveLen(1))
		Expect(executable[0].ID).To(Equal("b"))

		blocked := a.BlockedTasks()
		Expect(blocked).To(HaveLen(1))
		Expect(blocked[0].ID).To(Equal("c"))
	})

	It("labels edges completed, blocked, or valid", func() {
		a := graph.Analyze([]*model.Task{
			task("done", model.TaskCompleted),
			task("pending-dep", model.TaskPending),
			task("b", model.TaskPending, "done", "pending-dep"),
			task("c", model.TaskInProgress, "pending-dep"),
		})

		edges := a.Edges()
		Expect(edges).To(HaveLen(3))

		byPair := make(map[[2]string]graph.EdgeStatus)
		for _, e := range edges {
			byPair[[2]string{e.From, e.To}] = e.Status
		}
		Expect(byPair[[2]string{"done", "b"}]).To(Equal(graph.EdgeCompleted))
		Expect(byPair[[2]string{"pending-dep", "b"}]).To(Equal(graph.EdgeBlocked))
		Expect(byPair[[2]string{"pending-dep", "c"}]).To(Equal(graph.EdgeValid))
	})
})

var _ = Describe("DetectCycle", func() {
	It("returns nil for acyclic graphs", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending),
			task("b", model.TaskPending, "a"),
			task("c", model.TaskPending, "a", "b"),
		})
		Expect(a.DetectCycle("c")).To(BeNil())
		Expect(a.Cycles()).To(BeEmpty())
	})

	It("finds a self-loop", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending, "a"),
		})
		Expect(a.DetectCycle("a")).To(Equal([]string{"a", "a"}))
	})

	It("returns the loop in walk order with the entry repeated", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending, "b"),
			task("b", model.TaskPending, "c"),
			task("c", model.TaskPending, "a"),
		})
		Expect(a.DetectCycle("a")).To(Equal([]string{"a", "b", "c", "a"}))
		Expect(a.DetectCycle("b")).To(Equal([]string{"b", "c", "a", "b"}))
	})

	It("reports a shared loop once per entry point", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending, "b"),
			task("b", model.TaskPending, "a"),
			task("c", model.TaskPending),
		})
		cycles := a.Cycles()
		Expect(cycles).To(HaveLen(2))
	})

	It("only reports loops reachable from the entry task", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending, "b"),
			task("b", model.TaskPending, "a"),
			task("solo", model.TaskPending),
		})
		Expect(a.DetectCycle("solo")).To(BeNil())
	})
})

var _ = Describe("CriticalPath", func() {
	It("returns the longest chain dependency-first", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending),
			task("b", model.TaskPending, "a"),
			task("c", model.TaskPending, "b"),
			task("short", model.TaskPending, "a"),
		})
		Expect(a.CriticalPath()).To(Equal([]string{"a", "b", "c"}))
	})

	It("handles several terminal tasks", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending),
			task("b", model.TaskPending, "a"),
			task("x", model.TaskPending),
			task("y", model.TaskPending, "x"),
			task("z", model.TaskPending, "y"),
		})
		Expect(a.CriticalPath()).To(Equal([]string{"x", "y", "z"}))
	})

	It("truncates instead of recursing forever on cycles", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskPending, "b"),
			task("b", model.TaskPending, "a"),
			task("tail", model.TaskPending, "a"),
		})
		path := a.CriticalPath()
		Expect(path).NotTo(BeEmpty())
		Expect(path[len(path)-1]).To(Equal("tail"))
		Expect(len(path)).To(BeNumerically("<=", 3))
	})
})

var _ = Describe("Stats", func() {
	It("summarizes the graph shape", func() {
		a := graph.Analyze([]*model.Task{
			task("a", model.TaskCompleted),
			task("b", model.TaskPending, "a"),
			task("c", model.TaskPending, "a", "b"),
			task("d", model.TaskPending),
		})
		s := a.Stats()
		Expect(s.TaskCount).To(Equal(4))
		Expect(s.WithDependencies).To(Equal(2))
		Expect(s.AvgDependencies).To(BeNumerically("~", 0.75, 0.001))
		Expect(s.MaxDependencies).To(Equal(2))
		Expect(s.ParallelismPotential).To(Equal(2)) // b and d
		Expect(s.BlockedCount).To(Equal(1))         // c
	})

	It("handles the empty set", func() {
		s := graph.Analyze(nil).Stats()
		Expect(s.TaskCount).To(BeZero())
		Expect(s.AvgDependencies).To(BeZero())
	})
})

package graph

// Stats summarizes the shape of a mission's dependency graph.
type Stats struct {
	TaskCount        int     `json:"taskCount"`
	WithDependencies int     `json:"withDependencies"`
	AvgDependencies  float64 `json:"avgDependencies"`
	MaxDependencies  int     `json:"maxDependencies"`

	// ParallelismPotential is the size of the currently executable set.
	ParallelismPotential int `json:"parallelismPotential"`

	// BlockedCount is the size of the currently blocked set.
	BlockedCount int `json:"blockedCount"`
}

// Stats computes graph statistics for the analyzed task set.
func (a *Analysis) Stats() Stats {
	s := Stats{TaskCount: len(a.order)}

	totalDeps := 0
	for _, id := range a.order {
		n := len(a.tasks[id].Dependencies)
		totalDeps += n
		if n > 0 {
			s.WithDependencies++
		}
		if n > s.MaxDependencies {
			s.MaxDependencies = n
		}
	}
	if s.TaskCount > 0 {
		s.AvgDependencies = float64(totalDeps) / float64(s.TaskCount)
	}

	s.ParallelismPotential = len(a.ExecutableTasks())
	s.BlockedCount = len(a.BlockedTasks())
	return s
}

package graph

// DetectCycle walks the dependency chain of one task depth-first and
// returns the ordered list of task ids forming the first loop found, or nil.
// The check is deliberately per-task: a cycle touching n tasks is reported
// once per entry point, and callers that want each cycle once may dedupe by
// converting results to id-sets.
func (a *Analysis) DetectCycle(taskID string) []string {
	if _, ok := a.tasks[taskID]; !ok {
		return nil
	}
	var stack []string
	onStack := make(map[string]int)
	visited := make(map[string]bool)
	return a.walkCycle(taskID, stack, onStack, visited)
}

func (a *Analysis) walkCycle(id string, stack []string, onStack map[string]int, visited map[string]bool) []string {
	if pos, ok := onStack[id]; ok {
		// Loop closes here: return the stack slice from the first
		// occurrence, plus the repeated id.
		cycle := append([]string{}, stack[pos:]...)
		return append(cycle, id)
	}
	if visited[id] {
		return nil
	}
	visited[id] = true

	t, ok := a.tasks[id]
	if !ok {
		return nil
	}

	onStack[id] = len(stack)
	stack = append(stack, id)
	for _, dep := range t.Dependencies {
		if cycle := a.walkCycle(dep, stack, onStack, visited); cycle != nil {
			return cycle
		}
	}
	delete(onStack, id)
	return nil
}

// Cycles runs DetectCycle for every task in input order and collects the
// non-empty results. Redundant reports of the same loop are kept.
func (a *Analysis) Cycles() [][]string {
	var out [][]string
	for _, id := range a.order {
		if cycle := a.DetectCycle(id); cycle != nil {
			out = append(out, cycle)
		}
	}
	return out
}

// CriticalPath returns the longest dependency chain ending at any terminal
// task (one no other task depends on), ordered dependency-first. A repeated
// id within the current recursion immediately terminates that branch with
// an empty sub-path, so a cyclic graph yields a truncated path rather than
// infinite recursion.
func (a *Analysis) CriticalPath() []string {
	dependedOn := make(map[string]bool)
	for _, t := range a.tasks {
		for _, dep := range t.Dependencies {
			dependedOn[dep] = true
		}
	}

	var longest []string
	for _, id := range a.order {
		if dependedOn[id] {
			continue
		}
		if chain := a.longestChain(id, make(map[string]bool)); len(chain) > len(longest) {
			longest = chain
		}
	}
	return longest
}

func (a *Analysis) longestChain(id string, visiting map[string]bool) []string {
	if visiting[id] {
		return nil
	}
	t, ok := a.tasks[id]
	if !ok {
		return nil
	}

	visiting[id] = true
	var best []string
	for _, dep := range t.Dependencies {
		if chain := a.longestChain(dep, visiting); len(chain) > len(best) {
			best = chain
		}
	}
	delete(visiting, id)

	return append(append([]string{}, best...), id)
}

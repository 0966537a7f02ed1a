package cli

import (
	"fmt"
	"sync"

	"taskforce/model"
)

// OrchestrationHandler implements streamers.OrchestrationHandler for
// terminal output.
type OrchestrationHandler struct {
	mu sync.Mutex
}

// NewOrchestrationHandler creates a new CLI orchestration handler
func NewOrchestrationHandler() *OrchestrationHandler {
	return &OrchestrationHandler{}
}

func (s *OrchestrationHandler) MissionStarted(m *model.Mission, squadLeadName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Mission: %s ===%s\n", ColorBold, ColorCyan, m.Title, ColorReset)
	fmt.Printf("%sMission ID: %s%s\n", ColorGray, m.ID, ColorReset)
	fmt.Printf("%sSquad lead: %s%s\n\n", ColorGray, squadLeadName, ColorReset)
}

func (s *OrchestrationHandler) MissionPaused(m *model.Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Mission '%s' paused ===%s\n", ColorBold, ColorYellow, m.Title, ColorReset)
}

func (s *OrchestrationHandler) MissionCompleted(m *model.Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s=== Mission '%s' completed ===%s\n", ColorBold, ColorGreen, m.Title, ColorReset)
	if m.Stats != nil {
		fmt.Printf("%s%d tasks, %d completed, %d failed%s\n",
			ColorGray, m.Stats.TotalTasks, m.Stats.CompletedTasks, m.Stats.FailedTasks, ColorReset)
	}
}

func (s *OrchestrationHandler) TaskStarted(t *model.Task, agentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%s--- Task: %s ---%s\n", ColorBold, ColorCyan, t.Title, ColorReset)
	if agentName != "" {
		fmt.Printf("%sAgent: %s%s\n", ColorGray, agentName, ColorReset)
	}
}

func (s *OrchestrationHandler) TaskCompleted(t *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s✓%s %s\n", ColorGreen, ColorReset, t.Title)
}

func (s *OrchestrationHandler) TaskFailed(t *model.Task, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s✗%s %s: %s\n", ColorRed, ColorReset, t.Title, reason)
}

func (s *OrchestrationHandler) TaskRetrying(t *model.Task, attempt, maxRetries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s↻ %s (attempt %d/%d)%s\n", ColorYellow, t.Title, attempt, maxRetries, ColorReset)
}

func (s *OrchestrationHandler) AuditRequested(t *model.Task, reviewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%s%sAudit requested for '%s'%s %s(review %s)%s\n",
		ColorBold, ColorMagenta, t.Title, ColorReset, ColorGray, reviewID, ColorReset)
}

func (s *OrchestrationHandler) AuditDecided(t *model.Task, decision string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%sAudit decision for '%s': %s%s\n", ColorMagenta, t.Title, decision, ColorReset)
}

func (s *OrchestrationHandler) HumanInputRequested(t *model.Task, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\n%s%sHuman input needed:%s %s\n", ColorBold, ColorOrange, ColorReset, question)
}

func (s *OrchestrationHandler) HumanResponseReceived(t *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%sHuman response recorded for '%s'%s\n", ColorGray, t.Title, ColorReset)
}

func (s *OrchestrationHandler) Error(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("%sError: %v%s\n", ColorRed, err, ColorReset)
}

package supervisor

// Phase labels a pipeline stage for user-facing progress updates.
type Phase string

const (
	PhaseUnderstanding Phase = "understanding"
	PhaseRefining      Phase = "refining"
	PhaseExecuting     Phase = "executing"
	PhaseValidating    Phase = "validating"
	PhaseCompleting    Phase = "completing"
)

var phasePercent = map[Phase]int{
	PhaseUnderstanding: 0,
	PhaseRefining:      20,
	PhaseExecuting:     30,
	PhaseValidating:    80,
	PhaseCompleting:    100,
}

// PhasePercent maps a phase to its nominal completion percentage.
func PhasePercent(p Phase) int {
	return phasePercent[p]
}

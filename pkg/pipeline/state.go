package pipeline

// State is a stage of an analysis
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateProbing
	StateSynthesizing
	StateAnnotating
	StateScoring
	StateComplete
	StateFallback
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StatePreparing:    "preparing",
	StateProbing:      "probing",
	StateSynthesizing: "synthesizing",
	StateAnnotating:   "annotating",
	StateScoring:      "scoring",
	StateComplete:     "complete",
	StateFallback:     "fallback",
}

var stepLabels = map[State]string{
	StatePreparing:    "Preparing image...",
	StateProbing:      "Loading AI model...",
	StateSynthesizing: "Analyzing dental features...",
	StateAnnotating:   "Generating report...",
	StateScoring:      "Generating report...",
	StateComplete:     "Analysis complete",
	StateFallback:     "Analysis completed with backup method",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Step returns the user-facing progress label for s
func (s State) Step() string {
	return stepLabels[s]
}

// Terminal reports whether s ends an analysis
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFallback
}

// Progress is emitted on every state transition
type Progress struct {
	State State  `json:"-"`
	Name  string `json:"state"`
	Step  string `json:"step"`
}

// ProgressFunc receives progress updates
type ProgressFunc func(Progress)

package detector

// State owns the validator memory and the two rolling windows. It is
// touched by exactly one goroutine (the publish cycle), so it needs no
// locking. Rejected samples leave it completely untouched.
type State struct {
	lastAccepted *int
	cpm          *Window[int]
	dose         *Window[float64]

	maxCPM  int
	maxJump float64
	factor  float64
}

// NewState creates detector state for the given limits. windowSize must be
// at least 1 and factor positive; both are also enforced at config load.
func NewState(windowSize, maxCPM int, maxJump, factor float64) (*State, error) {
	cpmWindow, err := NewWindow[int](windowSize)
	if err != nil {
		return nil, err
	}
	doseWindow, err := NewWindow[float64](windowSize)
	if err != nil {
		return nil, err
	}
	return &State{
		cpm:     cpmWindow,
		dose:    doseWindow,
		maxCPM:  maxCPM,
		maxJump: maxJump,
		factor:  factor,
	}, nil
}

// Observe validates one decoded CPM reading. On acceptance it pushes the
// reading and its dose-rate conversion into their windows, updates the
// validator memory and returns true. On rejection nothing is mutated; the
// two windows never desynchronize because this is their only writer.
func (s *State) Observe(cpm int) bool {
	if !Accept(cpm, s.lastAccepted, s.maxCPM, s.maxJump) {
		return false
	}

	s.cpm.Push(cpm)
	s.dose.Push(DoseRate(cpm, s.factor))

	v := cpm
	s.lastAccepted = &v
	return true
}

// LastAccepted returns the most recently accepted reading, if any.
func (s *State) LastAccepted() (int, bool) {
	if s.lastAccepted == nil {
		return 0, false
	}
	return *s.lastAccepted, true
}

// SnapshotCPM aggregates the CPM window. ok is false before the first
// accepted sample.
func (s *State) SnapshotCPM() (Stats[int], bool) {
	return s.cpm.Snapshot()
}

// SnapshotDose aggregates the dose-rate window.
func (s *State) SnapshotDose() (Stats[float64], bool) {
	return s.dose.Snapshot()
}

package sweep

// ChopperPhase selects the result bucket a step's reading belongs to.
type ChopperPhase string

const (
	PhaseNone ChopperPhase = "none"
	PhaseHot  ChopperPhase = "hot"
	PhaseCold ChopperPhase = "cold"
)

// ChopperPhases returns the passes a measurement makes over the same
// frequency plan: Hot then Cold when the chopper is enabled, a single
// undifferentiated pass otherwise.
func ChopperPhases(enabled bool) []ChopperPhase {
	if enabled {
		return []ChopperPhase{PhaseHot, PhaseCold}
	}
	return []ChopperPhase{PhaseNone}
}

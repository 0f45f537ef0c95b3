package engine

// Family groups node types by the runner that executes them. The set is
// closed: every shipped node type maps to exactly one family, and ids we
// don't recognize map to FamilyUnknown, which the evaluator logs and
// skips instead of failing the run.
type Family int

const (
	FamilyUnknown Family = iota
	FamilySelection
	FamilyAudio
	FamilySignal
	FamilyColor
	FamilyApply
	FamilyAnalysis
)

// String returns the family name for logs.
func (f Family) String() string {
	switch f {
	case FamilySelection:
		return "selection"
	case FamilyAudio:
		return "audio"
	case FamilySignal:
		return "signal"
	case FamilyColor:
		return "color"
	case FamilyApply:
		return "apply"
	case FamilyAnalysis:
		return "analysis"
	default:
		return "unknown"
	}
}

// familyOf is the total mapping from node type id to runner family.
func familyOf(typeID string) Family {
	switch typeID {
	case "select", "get_attribute", "random_select_mask":
		return FamilySelection
	case "audio_input", "beat_clock", "stem_splitter",
		"lowpass_filter", "highpass_filter",
		"frequency_amplitude", "beat_envelope", "pattern_entry":
		return FamilyAudio
	case "pattern_args", "math", "scalar", "round", "threshold",
		"normalize", "invert", "remap", "modulo", "falloff",
		"ramp", "ramp_between", "sine_wave", "noise", "time_delay":
		return FamilySignal
	case "color", "gradient", "chroma_palette", "spectral_shift":
		return FamilyColor
	case "apply_dimmer", "apply_color", "apply_strobe",
		"apply_position", "apply_speed":
		return FamilyApply
	case "harmony_analysis", "harmonic_tension", "view_signal",
		"mel_spec_viewer":
		return FamilyAnalysis
	default:
		return FamilyUnknown
	}
}

// needsContext reports whether a node type requires the shared context
// audio buffer or beat grid to be loaded before the run starts.
func needsContext(typeID string) bool {
	switch typeID {
	case "audio_input", "beat_clock", "stem_splitter",
		"harmony_analysis", "lowpass_filter", "highpass_filter":
		return true
	default:
		return false
	}
}

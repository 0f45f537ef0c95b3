package engine

import "github.com/roach88/lumen/internal/graph"

func numberDef(v float32) *float32 { return &v }
func textDef(v string) *string     { return &v }

func signalPort(id, name string) graph.PortDef {
	return graph.PortDef{ID: id, Name: name, PortType: graph.PortSignal}
}

// NodeTypes returns the full catalog of supported node types, in the
// order editors present them.
func NodeTypes() []graph.NodeTypeDef {
	var defs []graph.NodeTypeDef
	defs = append(defs, selectionNodeTypes()...)
	defs = append(defs, audioNodeTypes()...)
	defs = append(defs, signalNodeTypes()...)
	defs = append(defs, colorNodeTypes()...)
	defs = append(defs, applyNodeTypes()...)
	defs = append(defs, analysisNodeTypes()...)
	return defs
}

func selectionNodeTypes() []graph.NodeTypeDef {
	return []graph.NodeTypeDef{
		{
			ID:          "select",
			Name:        "Select",
			Description: "Selects fixtures or individual heads from the venue.",
			Category:    "Selection",
			Outputs:     []graph.PortDef{{ID: "out", Name: "Selection", PortType: graph.PortSelection}},
			Params: []graph.ParamDef{
				{ID: "selected_ids", Name: "Selected IDs", ParamType: graph.ParamText, DefaultText: textDef("[]")},
			},
		},
		{
			ID:          "get_attribute",
			Name:        "Get Attribute",
			Description: "Extracts spatial attributes from a selection into a Signal.",
			Category:    "Selection",
			Inputs:      []graph.PortDef{{ID: "selection", Name: "Selection", PortType: graph.PortSelection}},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "attribute", Name: "Attribute", ParamType: graph.ParamText, DefaultText: textDef("index")},
			},
		},
		{
			ID:          "random_select_mask",
			Name:        "Random Select Mask",
			Description: "Randomly picks heads from a selection whenever the trigger changes.",
			Category:    "Selection",
			Inputs: []graph.PortDef{
				{ID: "selection", Name: "Selection", PortType: graph.PortSelection},
				signalPort("trigger", "Trigger"),
			},
			Outputs: []graph.PortDef{signalPort("out", "Mask")},
			Params: []graph.ParamDef{
				{ID: "count", Name: "Count", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "avoid_repeat", Name: "Avoid Repeat", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
			},
		},
	}
}

func audioNodeTypes() []graph.NodeTypeDef {
	return []graph.NodeTypeDef{
		{
			ID:          "audio_input",
			Name:        "Audio Input",
			Description: "The context track's audio for the pattern window.",
			Category:    "Audio",
			Outputs: []graph.PortDef{
				{ID: "out", Name: "Audio", PortType: graph.PortAudio},
				{ID: "grid_out", Name: "Beat Grid", PortType: graph.PortBeatGrid},
			},
		},
		{
			ID:          "pattern_entry",
			Name:        "Pattern Entry",
			Description: "Anchors a sub-pattern's audio window and forwards it downstream.",
			Category:    "Audio",
			Inputs: []graph.PortDef{
				{ID: "audio_in", Name: "Audio", PortType: graph.PortAudio},
				{ID: "grid_in", Name: "Beat Grid", PortType: graph.PortBeatGrid},
			},
			Outputs: []graph.PortDef{
				{ID: "audio_out", Name: "Audio", PortType: graph.PortAudio},
				{ID: "grid_out", Name: "Beat Grid", PortType: graph.PortBeatGrid},
			},
		},
		{
			ID:          "beat_clock",
			Name:        "Beat Clock",
			Description: "The context track's beat grid.",
			Category:    "Audio",
			Outputs:     []graph.PortDef{{ID: "grid_out", Name: "Beat Grid", PortType: graph.PortBeatGrid}},
		},
		{
			ID:          "stem_splitter",
			Name:        "Stem Splitter",
			Description: "Splits audio into preprocessed drum, bass, vocal and other stems.",
			Category:    "Audio",
			Inputs:      []graph.PortDef{{ID: "audio_in", Name: "Audio", PortType: graph.PortAudio}},
			Outputs: []graph.PortDef{
				{ID: "drums_out", Name: "Drums", PortType: graph.PortAudio},
				{ID: "bass_out", Name: "Bass", PortType: graph.PortAudio},
				{ID: "vocals_out", Name: "Vocals", PortType: graph.PortAudio},
				{ID: "other_out", Name: "Other", PortType: graph.PortAudio},
			},
		},
		{
			ID:          "lowpass_filter",
			Name:        "Lowpass Filter",
			Description: "Butterworth lowpass over the incoming audio.",
			Category:    "Audio",
			Inputs:      []graph.PortDef{{ID: "audio_in", Name: "Audio", PortType: graph.PortAudio}},
			Outputs:     []graph.PortDef{{ID: "audio_out", Name: "Audio", PortType: graph.PortAudio}},
			Params: []graph.ParamDef{
				{ID: "cutoff_hz", Name: "Cutoff (Hz)", ParamType: graph.ParamNumber, DefaultNumber: numberDef(200)},
			},
		},
		{
			ID:          "highpass_filter",
			Name:        "Highpass Filter",
			Description: "Butterworth highpass over the incoming audio.",
			Category:    "Audio",
			Inputs:      []graph.PortDef{{ID: "audio_in", Name: "Audio", PortType: graph.PortAudio}},
			Outputs:     []graph.PortDef{{ID: "audio_out", Name: "Audio", PortType: graph.PortAudio}},
			Params: []graph.ParamDef{
				{ID: "cutoff_hz", Name: "Cutoff (Hz)", ParamType: graph.ParamNumber, DefaultNumber: numberDef(200)},
			},
		},
		{
			ID:          "frequency_amplitude",
			Name:        "Frequency Amplitude",
			Description: "Per-frame energy of the selected frequency bands.",
			Category:    "Audio",
			Inputs:      []graph.PortDef{{ID: "audio_in", Name: "Audio", PortType: graph.PortAudio}},
			Outputs:     []graph.PortDef{signalPort("amplitude_out", "Amplitude")},
			Params: []graph.ParamDef{
				{ID: "selected_frequency_ranges", Name: "Frequency Ranges", ParamType: graph.ParamText, DefaultText: textDef("[]")},
			},
		},
		{
			ID:          "beat_envelope",
			Name:        "Beat Envelope",
			Description: "ADSR envelope pulsed on every beat of the grid.",
			Category:    "Audio",
			Inputs: []graph.PortDef{
				{ID: "grid", Name: "Beat Grid", PortType: graph.PortBeatGrid},
				signalPort("subdivision", "Subdivision"),
			},
			Outputs: []graph.PortDef{signalPort("out", "Envelope")},
			Params: []graph.ParamDef{
				{ID: "subdivision", Name: "Subdivision", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "only_downbeats", Name: "Only Downbeats", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
				{ID: "offset", Name: "Offset (beats)", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
				{ID: "attack", Name: "Attack", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0.3)},
				{ID: "decay", Name: "Decay", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0.2)},
				{ID: "sustain", Name: "Sustain", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0.3)},
				{ID: "release", Name: "Release", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0.2)},
				{ID: "sustain_level", Name: "Sustain Level", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0.7)},
				{ID: "attack_curve", Name: "Attack Curve", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
				{ID: "decay_curve", Name: "Decay Curve", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
				{ID: "amplitude", Name: "Amplitude", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
			},
		},
	}
}

func signalNodeTypes() []graph.NodeTypeDef {
	return []graph.NodeTypeDef{
		{
			ID:          "pattern_args",
			Name:        "Pattern Args",
			Description: "Exposes the graph's declared arguments as outputs.",
			Category:    "Generator",
		},
		{
			ID:          "math",
			Name:        "Math",
			Description: "Performs math operations on signals with broadcasting.",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("a", "A"), signalPort("b", "B")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "operation", Name: "Operation", ParamType: graph.ParamText, DefaultText: textDef("add")},
			},
		},
		{
			ID:          "scalar",
			Name:        "Scalar",
			Description: "Outputs a constant value.",
			Category:    "Generator",
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "value", Name: "Value", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
			},
		},
		{
			ID:          "round",
			Name:        "Round",
			Description: "Quantizes signal values (floor, ceil, round).",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "operation", Name: "Operation", ParamType: graph.ParamText, DefaultText: textDef("round")},
			},
		},
		{
			ID:          "threshold",
			Name:        "Threshold",
			Description: "Binarizes a signal using a cutoff value.",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "threshold", Name: "Threshold", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0.5)},
			},
		},
		{
			ID:          "normalize",
			Name:        "Normalize (0-1)",
			Description: "Normalizes a signal into 0..1 using its min/max over time.",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
		},
		{
			ID:          "invert",
			Name:        "Invert",
			Description: "Reflects a signal around the midpoint of its observed range.",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
		},
		{
			ID:          "remap",
			Name:        "Remap",
			Description: "Linearly maps an input range onto an output range.",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "in_min", Name: "In Min", ParamType: graph.ParamNumber, DefaultNumber: numberDef(-1)},
				{ID: "in_max", Name: "In Max", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "out_min", Name: "Out Min", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
				{ID: "out_max", Name: "Out Max", ParamType: graph.ParamNumber, DefaultNumber: numberDef(180)},
				{ID: "clamp", Name: "Clamp Input", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
			},
		},
		{
			ID:          "modulo",
			Name:        "Modulo",
			Description: "Wraps values into [0, divisor).",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "divisor", Name: "Divisor", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
			},
		},
		{
			ID:          "falloff",
			Name:        "Falloff",
			Description: "Tightens and reshapes a 0..1 signal.",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "width", Name: "Width", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "curve", Name: "Curve", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
			},
		},
		{
			ID:          "ramp",
			Name:        "Time Ramp",
			Description: "Generates a linear ramp from 0 to n_beats over the pattern duration.",
			Category:    "Generator",
			Inputs:      []graph.PortDef{{ID: "grid", Name: "Beat Grid", PortType: graph.PortBeatGrid}},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
		},
		{
			ID:          "ramp_between",
			Name:        "Linear Ramp",
			Description: "Generates a linear ramp from start to end signals over the pattern duration.",
			Category:    "Generator",
			Inputs: []graph.PortDef{
				{ID: "grid", Name: "Beat Grid", PortType: graph.PortBeatGrid},
				signalPort("start", "Start"),
				signalPort("end", "End"),
			},
			Outputs: []graph.PortDef{signalPort("out", "Signal")},
		},
		{
			ID:          "sine_wave",
			Name:        "Sine Wave",
			Description: "Oscillates at a subdivision of the beat.",
			Category:    "Generator",
			Inputs: []graph.PortDef{
				{ID: "grid", Name: "Beat Grid", PortType: graph.PortBeatGrid},
				signalPort("subdivision", "Subdivision"),
			},
			Outputs: []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "subdivision", Name: "Subdivision", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "phase_deg", Name: "Phase (deg)", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
				{ID: "amplitude", Name: "Amplitude", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "offset", Name: "Offset", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
			},
		},
		{
			ID:          "noise",
			Name:        "Noise",
			Description: "Fractal value noise over time and space.",
			Category:    "Generator",
			Inputs: []graph.PortDef{
				signalPort("time", "Time"),
				signalPort("x", "X"),
				signalPort("y", "Y"),
			},
			Outputs: []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "scale", Name: "Scale", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "octaves", Name: "Octaves", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "amplitude", Name: "Amplitude", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
				{ID: "offset", Name: "Offset", ParamType: graph.ParamNumber, DefaultNumber: numberDef(0)},
			},
		},
		{
			ID:          "time_delay",
			Name:        "Time Delay",
			Description: "Delays a signal per fixture by a delay signal, in seconds.",
			Category:    "Transform",
			Inputs:      []graph.PortDef{signalPort("in", "Signal"), signalPort("delay", "Delay")},
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
		},
	}
}

func colorNodeTypes() []graph.NodeTypeDef {
	return []graph.NodeTypeDef{
		{
			ID:          "color",
			Name:        "Color",
			Description: "Outputs a constant RGBA signal.",
			Category:    "Generator",
			Outputs:     []graph.PortDef{signalPort("out", "Signal")},
			Params: []graph.ParamDef{
				{ID: "color", Name: "Color", ParamType: graph.ParamText, DefaultText: textDef(`{"r":255,"g":0,"b":0,"a":1}`)},
			},
		},
		{
			ID:          "gradient",
			Name:        "Gradient",
			Description: "Interpolates between start and end colors based on a signal (0..1).",
			Category:    "Color",
			Inputs: []graph.PortDef{
				signalPort("in", "Signal"),
				signalPort("start_color", "Start Color"),
				signalPort("end_color", "End Color"),
			},
			Outputs: []graph.PortDef{signalPort("out", "Color")},
			Params: []graph.ParamDef{
				{ID: "start_color", Name: "Start Color", ParamType: graph.ParamText, DefaultText: textDef("#000000")},
				{ID: "end_color", Name: "End Color", ParamType: graph.ParamText, DefaultText: textDef("#ffffff")},
			},
		},
		{
			ID:          "chroma_palette",
			Name:        "Harmonic Palette",
			Description: "Maps the 12 chroma pitches to colors.",
			Category:    "Color",
			Inputs:      []graph.PortDef{signalPort("chroma", "Chroma")},
			Outputs:     []graph.PortDef{signalPort("out", "Color")},
			Params: []graph.ParamDef{
				{ID: "palette", Name: "Palette", ParamType: graph.ParamText, DefaultText: textDef("Rainbow")},
			},
		},
		{
			ID:          "spectral_shift",
			Name:        "Spectral Shift",
			Description: "Rotates color hue based on the dominant musical key.",
			Category:    "Color",
			Inputs:      []graph.PortDef{signalPort("in", "Base Color"), signalPort("chroma", "Chroma")},
			Outputs:     []graph.PortDef{signalPort("out", "Color")},
			Params: []graph.ParamDef{
				{ID: "strength", Name: "Strength", ParamType: graph.ParamNumber, DefaultNumber: numberDef(1)},
			},
		},
	}
}

func applyNodeTypes() []graph.NodeTypeDef {
	selPort := graph.PortDef{ID: "selection", Name: "Selection", PortType: graph.PortSelection}
	return []graph.NodeTypeDef{
		{
			ID:          "apply_dimmer",
			Name:        "Apply Dimmer",
			Description: "Writes a dimmer series onto the selected heads.",
			Category:    "Apply",
			Inputs:      []graph.PortDef{selPort, signalPort("signal", "Signal")},
		},
		{
			ID:          "apply_color",
			Name:        "Apply Color",
			Description: "Writes color and derived dimmer series onto the selected heads.",
			Category:    "Apply",
			Inputs:      []graph.PortDef{selPort, signalPort("signal", "Signal")},
		},
		{
			ID:          "apply_strobe",
			Name:        "Apply Strobe",
			Description: "Writes a strobe rate series onto the selected heads.",
			Category:    "Apply",
			Inputs:      []graph.PortDef{selPort, signalPort("signal", "Signal")},
		},
		{
			ID:          "apply_position",
			Name:        "Apply Position",
			Description: "Writes a pan/tilt series onto the selected heads.",
			Category:    "Apply",
			Inputs:      []graph.PortDef{selPort, signalPort("pan", "Pan"), signalPort("tilt", "Tilt")},
		},
		{
			ID:          "apply_speed",
			Name:        "Apply Speed",
			Description: "Freezes or runs effect playback per head.",
			Category:    "Apply",
			Inputs:      []graph.PortDef{selPort, signalPort("speed", "Speed")},
		},
	}
}

func analysisNodeTypes() []graph.NodeTypeDef {
	return []graph.NodeTypeDef{
		{
			ID:          "harmony_analysis",
			Name:        "Harmony Analysis",
			Description: "Detects chords from incoming audio and exposes a confidence timeline.",
			Category:    "Audio",
			Inputs: []graph.PortDef{
				{ID: "audio_in", Name: "Audio", PortType: graph.PortAudio},
				{ID: "grid_in", Name: "Beat Grid", PortType: graph.PortBeatGrid},
			},
			Outputs: []graph.PortDef{signalPort("signal", "Chroma")},
		},
		{
			ID:          "harmonic_tension",
			Name:        "Harmonic Tension",
			Description: "Calculates tension/dissonance from harmony spread.",
			Category:    "Math",
			Inputs:      []graph.PortDef{signalPort("chroma", "Chroma")},
			Outputs:     []graph.PortDef{signalPort("tension", "Tension")},
		},
		{
			ID:          "view_signal",
			Name:        "View Signal",
			Description: "Displays the incoming signal.",
			Category:    "View",
			Inputs:      []graph.PortDef{signalPort("in", "Signal")},
		},
		{
			ID:          "mel_spec_viewer",
			Name:        "Mel Spectrogram",
			Description: "Shows the mel spectrogram for the incoming audio.",
			Category:    "View",
			Inputs: []graph.PortDef{
				{ID: "in", Name: "Audio", PortType: graph.PortAudio},
				{ID: "grid", Name: "Beat Grid", PortType: graph.PortBeatGrid},
			},
		},
	}
}

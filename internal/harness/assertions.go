package harness

import (
	"fmt"
	"math"

	"github.com/roach88/lumen/internal/graph"
)

// EvaluateAssertions checks every assertion against the merged layer
// and returns one failure message per violated assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case "primitive_count":
			err = assertPrimitiveCount(result.Layers, a)
		case "has_capability":
			err = assertHasCapability(result.Layers, a)
		case "sample_value":
			err = assertSampleValue(result.Layers, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

func assertPrimitiveCount(layers graph.LayerTimeSeries, a Assertion) error {
	if got := len(layers.Primitives); got != a.Count {
		return fmt.Errorf("expected %d primitive(s), got %d", a.Count, got)
	}
	return nil
}

func assertHasCapability(layers graph.LayerTimeSeries, a Assertion) error {
	_, err := findSeries(layers, a.Primitive, a.Capability)
	return err
}

func assertSampleValue(layers graph.LayerTimeSeries, a Assertion) error {
	series, err := findSeries(layers, a.Primitive, a.Capability)
	if err != nil {
		return err
	}
	if a.Sample < 0 || a.Sample >= len(series.Samples) {
		return fmt.Errorf("sample %d out of range (series has %d)", a.Sample, len(series.Samples))
	}
	values := series.Samples[a.Sample].Values
	if a.Channel < 0 || a.Channel >= len(values) {
		return fmt.Errorf("channel %d out of range (sample has %d)", a.Channel, len(values))
	}

	got := float64(values[a.Channel])
	if math.Abs(got-a.Value) > a.Tolerance {
		return fmt.Errorf("%s[%d][%d] = %g, expected %g (tolerance %g)",
			a.Capability, a.Sample, a.Channel, got, a.Value, a.Tolerance)
	}
	return nil
}

func findSeries(layers graph.LayerTimeSeries, primitiveID, capability string) (*graph.Series, error) {
	for _, prim := range layers.Primitives {
		if prim.PrimitiveID != primitiveID {
			continue
		}
		var series *graph.Series
		switch capability {
		case "color":
			series = prim.Color
		case "dimmer":
			series = prim.Dimmer
		case "position":
			series = prim.Position
		case "strobe":
			series = prim.Strobe
		case "speed":
			series = prim.Speed
		default:
			return nil, fmt.Errorf("unknown capability %q", capability)
		}
		if series == nil {
			return nil, fmt.Errorf("primitive %q has no %s series", primitiveID, capability)
		}
		return series, nil
	}
	return nil, fmt.Errorf("primitive %q not animated", primitiveID)
}

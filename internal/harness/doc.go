// Package harness provides scenario testing for graph evaluation.
//
// The harness loads a YAML scenario describing a graph, a venue, and a
// time window, evaluates the graph against a throwaway project store,
// and validates the merged output layer through assertions or golden
// file comparison.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	graph: graphs/constant_dimmer.json
//	venue:
//	  - id: bar-1
//	    mode: 4head
//	    position: [2, 0, 3]
//	    heads:
//	      - [-300, 0, 0]
//	      - [300, 0, 0]
//	    tags: [front]
//	context:
//	  start: 0
//	  end: 4
//	assertions:
//	  - type: primitive_count
//	    count: 2
//	  - type: sample_value
//	    primitive: "bar-1:0"
//	    capability: dimmer
//	    sample: 0
//	    value: 0.5
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - primitive_count: Verifies how many primitives the merged layer animates
//   - has_capability: Verifies a primitive carries a capability series
//   - sample_value: Verifies one sample value of a capability series
//
// # Golden Files
//
// RunWithGolden compares the merged layer against a golden file in
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness

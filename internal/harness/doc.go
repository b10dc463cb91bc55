// Package harness provides conformance testing for the parking engine.
//
// The harness runs YAML scenarios through a real engine over a fresh
// in-memory ledger and validates the resulting trace and final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  line_y: 240
//	  margin: 15
//	  max_capacity: 2
//	  hourly_rate: 50
//	events:
//	  - observe: { tracker: t1, cy: 100, at: 2026-03-01T10:00:00Z, plate_hint: DL12345 }
//	  - observe: { tracker: t1, cy: 400, at: 2026-03-01T10:00:05Z }
//	  - recognize: { tracker: t2, plate: "MH 67890" }
//	assertions:
//	  - type: trace_contains
//	    event: entry
//	    identity: DL12345
//	  - type: final_state
//	    where: { identity: DL12345 }
//	    expect: { fare: 50 }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies an effect appears in the trace
//   - trace_order: Verifies effects appear in specified order
//   - trace_count: Verifies an effect appears exactly N times
//   - final_state: Queries the sessions table and verifies expected values
//
// # Trace Events
//
// Processing an input yields zero or more trace effects: entry,
// duplicate_entry, exit, illegal_exit, capacity_alert, migration. An
// input with several effects (an entry that also breaches capacity)
// yields several trace events sharing one sequence number.
//
// # Golden Files
//
// RunWithGolden compares a scenario's trace against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness

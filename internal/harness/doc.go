// Package harness runs dispatch-recovery scenarios.
//
// A scenario names a program fixture, the dispatch method to resolve and
// the code map it must produce. Running a scenario compiles the program,
// resolves the method, slices every custom handler and evaluates the
// assertions against the result.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: switch_dispatch
//	description: "AIDL stub dispatching through a switch"
//	program: ../programs/stub.yaml
//	method: "com.example.IFoo$Stub#onTransact(int,android.os.Parcel,android.os.Parcel,int)boolean"
//	param: 0
//	assertions:
//	  - type: codes
//	    codes: [1, 2]
//	  - type: standard
//	    code: 1
//	    target: "com.example.IFoo#ping()int"
//	  - type: custom
//	    code: 2
//	    entry: 2
//	  - type: absent
//	    code: 0x5f4e5446
//	  - type: slice
//	    code: 2
//	    contains: ["writeInt"]
//
// The program path is resolved relative to the scenario file. Unknown
// fields are rejected.
//
// # Assertion Types
//
//   - codes: the recovered codes, in ascending order, are exactly Codes
//   - standard: Code reduces to a call of Target
//   - custom: Code is handled inline starting at block Entry
//   - absent: Code is not recovered
//   - slice: Code slices into a self-contained method whose listing
//     contains every string of Contains
//
// # Golden Files
//
// Snapshot renders a result as a code listing followed by every sliced
// handler. RunWithGolden compares it with testdata/golden/<name>.golden;
// run the tests with -update to regenerate.
package harness

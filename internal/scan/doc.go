// Package scan runs the dispatch resolver over every registered system
// service of a program and records the outcome per service and per code.
//
// A scan proceeds in three steps:
//
//  1. Discover finds registration calls and maps service names to classes.
//  2. Each service is analysed on a bounded worker pool: its concrete class
//     is chosen, the dispatch override is located and resolved, and every
//     recovered code is summarised.
//  3. Results are flagged against the baseline firmware of the same release
//     and written through a Recorder.
//
// A failure while analysing one service or one code becomes a status on
// that row; only storage and cancellation errors abort a run.
package scan

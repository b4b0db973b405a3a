// Package engine recovers Binder dispatch tables from lifted method bodies.
//
// The engine has three parts:
//
// Resolver:
// Walks a call-handling method from its entry block, one frontier round at
// a time. Switches and comparisons keyed on the request-code parameter
// yield one Transaction per code; calls that forward the code to another
// dispatch method are followed.
//
// Classifier:
// Decides whether the block handling one code only calls an existing
// method (Standard) or holds logic of its own (Custom).
//
// Slicer:
// Turns a Custom transaction into a new, self-contained method whose body
// is the region of the original control flow graph around the code's
// block.
//
// TERMINATION:
// Every method scan has a round budget, and delegation is tracked with a
// visited-method set owned by one Resolve call. Both hold on adversarial
// input: a method that forwards to itself, or a body with long branch
// chains, still finishes.
//
// PURITY:
// Nothing in this package mutates an ir.Body it is given. Resolve and
// Slice are safe to run concurrently on shared bodies.
package engine

// Package gossa lifts Go packages into the ir model through
// golang.org/x/tools/go/ssa.
//
// Named types become classes and their declared methods become methods;
// package-level functions and closures are static methods of a class named
// after the package path. An embedded struct field plays the role of a
// superclass, and package interfaces a type satisfies are recorded as
// implemented interfaces.
//
// Go SSA lowers switch statements to equality chains, so request codes are
// recovered through the resolver's comparison handling. Instructions the
// engine does not interpret become opaque expressions with their operands
// kept, so slicing can still remap them.
package gossa

// Package queryir is the abstract filter representation behind reports.
//
// A report request is expressed as a Select over one result table with a
// conjunction of equality predicates. Backends (internal/querysql) compile
// it to a concrete query language; this package only describes the query
// and checks it against a table schema.
//
// Query and Predicate are sealed interfaces using the marker method
// pattern, so backends can switch exhaustively:
//
//	switch q := query.(type) {
//	case Select:
//	    // Handle select
//	default:
//	    // Impossible - compiler knows all Query types
//	}
//
// Literal values are restricted to String, Int and Bool so that every
// predicate has one unambiguous parameter encoding.
package queryir

package queryir

// Query represents an abstract query.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Value is a predicate literal: String, Int or Bool.
type Value interface {
	literal()
}

// String is a text literal.
type String string

// Int is an integer literal.
type Int int64

// Bool is a boolean literal.
type Bool bool

func (String) literal() {}
func (Int) literal()    {}
func (Bool) literal()   {}

// Select reads Columns from one table.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order_by>, id
//
// Example:
//
//	Select{
//	  From:    "transactions",
//	  Columns: []string{"service_name", "code"},
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Field: "firmware_id", Value: Int(1)},
//	    Equals{Field: "kind", Value: String("custom")},
//	  }},
//	  OrderBy: []string{"service_name", "code"},
//	}
//
// The row id is always the final ordering key, so results are total
// ordered even when OrderBy is empty.
type Select struct {
	From    string
	Columns []string  // explicit projection, never "*"
	Filter  Predicate // nil = no filter
	OrderBy []string  // ascending
}

func (Select) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
//	<field> = <value>
type Equals struct {
	Field string
	Value Value
}

func (Equals) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// All builds the conjunction of the non-nil predicates in ps. It returns
// nil when none remain and the single predicate when only one does.
func All(ps ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range ps {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return And{Predicates: kept}
}

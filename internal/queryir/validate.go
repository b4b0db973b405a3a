package queryir

import (
	"fmt"
	"slices"
)

// Schema lists the columns of every queryable table.
type Schema map[string][]string

// ValidationResult contains the problems found in a query.
type ValidationResult struct {
	// IsValid is true when Problems is empty.
	IsValid bool

	// Problems lists every unknown table, unknown column or malformed node.
	Problems []string
}

// Validate checks a query against schema: the table must exist, every
// referenced column must belong to it, and every predicate must carry a
// value. All problems are collected rather than stopping at the first.
//
// Validate is a pure function with no side effects.
func Validate(query Query, schema Schema) ValidationResult {
	v := &validator{schema: schema, problems: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		IsValid:  len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	schema   Schema
	problems []string
	columns  []string
	table    string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	cols, ok := v.schema[sel.From]
	if !ok {
		v.addProblem("unknown table %q", sel.From)
		return
	}
	v.table, v.columns = sel.From, cols

	if len(sel.Columns) == 0 {
		v.addProblem("select from %s lists no columns", sel.From)
	}
	for _, c := range sel.Columns {
		v.checkColumn(c)
	}
	for _, c := range sel.OrderBy {
		v.checkColumn(c)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) checkColumn(name string) {
	if !slices.Contains(v.columns, name) {
		v.addProblem("unknown column %s.%s", v.table, name)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	v.checkColumn(eq.Field)
	if eq.Value == nil {
		v.addProblem("field %s compared to nil", eq.Field)
	}
}

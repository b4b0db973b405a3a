package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/binderscan/internal/queryir"
)

// SQLCompiler compiles queryir queries to parameterized SQL for SQLite.
//
// Every query ends in ORDER BY with the row id as the final key, and every
// literal is a ? parameter, never interpolated.
type SQLCompiler struct {
	// Schema is checked before compilation; nil skips validation.
	Schema queryir.Schema
}

// NewSQLCompiler creates a compiler that validates against the result
// tables.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Schema: Tables}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if c.Schema != nil {
		if res := queryir.Validate(q, c.Schema); !res.IsValid {
			return "", nil, fmt.Errorf("invalid query: %s", strings.Join(res.Problems, "; "))
		}
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select from %s lists no columns", q.From)
	}

	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(q.Columns, ", "),
		q.From,
		whereClause,
		c.stableOrderKey(q))

	return sql, params, nil
}

// stableOrderKey returns the ORDER BY list: the requested keys followed
// by the row id. COLLATE BINARY keeps text ordering identical across
// SQLite builds.
func (c *SQLCompiler) stableOrderKey(q queryir.Select) string {
	parts := make([]string, 0, len(q.OrderBy)+1)
	for _, col := range q.OrderBy {
		if col == "id" {
			continue
		}
		parts = append(parts, col+" COLLATE BINARY ASC")
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}

// compilePredicate compiles a predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := valueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", eq.Field, err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	sqlParts := make([]string, 0, len(and.Predicates))
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if _, nested := pred.(queryir.And); nested {
			sql = "(" + sql + ")"
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return strings.Join(sqlParts, " AND "), allParams, nil
}

// valueToParam converts a literal to a database/sql parameter.
func valueToParam(v queryir.Value) (any, error) {
	switch val := v.(type) {
	case queryir.String:
		return string(val), nil
	case queryir.Int:
		return int64(val), nil
	case queryir.Bool:
		return bool(val), nil
	case nil:
		return nil, fmt.Errorf("nil value")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/binderscan/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Body errors (E100-E104)
	ErrInvalidBody = "E100" // body fails to lift or is not self-contained

	// Hierarchy errors (E110-E119)
	ErrUnknownOuter       = "E110" // outer names an undeclared class
	ErrNotInterface       = "E111" // implemented type is a declared class
	ErrSuperIsInterface   = "E112" // superclass is an interface
	ErrInheritanceCycle   = "E113" // class transitively extends itself
	ErrAbstractInConcrete = "E114" // abstract method on a concrete class
)

// ValidationError represents a program validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a program's hierarchy and lifts every body it can.
// Returns all errors found (does not fail-fast), in class registration
// order. Phantom classes are skipped.
func Validate(p *ir.Program) []ValidationError {
	var errs []ValidationError
	for _, c := range p.Classes() {
		if c.IsPhantom() {
			continue
		}
		errs = append(errs, validateClass(p, c)...)
		for _, m := range c.Methods {
			if !m.IsConcrete() {
				continue
			}
			if _, err := m.Body(); err != nil {
				ve := ValidationError{Field: m.Key(), Message: err.Error(), Code: ErrInvalidBody}
				var ce *CompileError
				if errors.As(err, &ce) {
					ve.Message, ve.Line = ce.Message, ce.Line
				}
				errs = append(errs, ve)
			}
		}
	}
	return errs
}

func validateClass(p *ir.Program, c *ir.Class) []ValidationError {
	var errs []ValidationError

	// E110: outer class must be declared
	if c.Outer != "" && p.Class(c.Outer) == nil {
		errs = append(errs, ValidationError{
			Field:   c.Name + ".outer",
			Message: fmt.Sprintf("outer class %s is not declared", c.Outer),
			Code:    ErrUnknownOuter,
		})
	}

	// E111: implemented types must be interfaces when declared
	for _, name := range c.Interfaces {
		if i := p.Class(name); i != nil && !i.IsPhantom() && !i.IsInterface() {
			errs = append(errs, ValidationError{
				Field:   c.Name + ".interfaces",
				Message: fmt.Sprintf("%s is a class, not an interface", name),
				Code:    ErrNotInterface,
			})
		}
	}

	// E112: superclass must not be an interface
	if s := p.SuperOf(c); s != nil && s.IsInterface() {
		errs = append(errs, ValidationError{
			Field:   c.Name + ".super",
			Message: fmt.Sprintf("superclass %s is an interface", s.Name),
			Code:    ErrSuperIsInterface,
		})
	}

	// E113: inheritance cycle
	if extendsItself(p, c) {
		errs = append(errs, ValidationError{
			Field:   c.Name + ".super",
			Message: "class transitively extends itself",
			Code:    ErrInheritanceCycle,
		})
	}

	// E114: abstract methods need an abstract class
	if !c.IsAbstract() {
		for _, m := range c.Methods {
			if m.IsAbstract() {
				errs = append(errs, ValidationError{
					Field:   m.Key(),
					Message: fmt.Sprintf("abstract method on concrete class %s", c.Name),
					Code:    ErrAbstractInConcrete,
				})
			}
		}
	}
	return errs
}

// extendsItself reports whether c's superclass chain leads back to c.
func extendsItself(p *ir.Program, c *ir.Class) bool {
	seen := make(map[*ir.Class]bool)
	for s := p.SuperOf(c); s != nil && !seen[s]; s = p.SuperOf(s) {
		if s == c {
			return true
		}
		seen[s] = true
	}
	return false
}

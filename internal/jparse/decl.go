// Package jparse converts Java source bytes into a lightweight declaration
// tree using a tolerant, heuristic grammar subset. It is deliberately not a
// compiler front end: unknown syntax is skipped with a diagnostic, malformed
// regions are isolated, and a parse never fails past the file boundary.
package jparse

import "strings"

// Outcome classifies the result of parsing one file.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial_failure"
	OutcomeFailure Outcome = "failure"
)

// TypeKind is the declaration flavor of a Java type.
type TypeKind string

const (
	KindClass      TypeKind = "class"
	KindInterface  TypeKind = "interface"
	KindEnum       TypeKind = "enum"
	KindAnnotation TypeKind = "annotation"
)

// Annotation is a usage such as @Service("payments"). Args hold the literal
// argument text, not semantically validated.
type Annotation struct {
	Name string
	Args string
}

// Import is a single import statement.
type Import struct {
	Path   string
	Static bool
}

// Param is one method parameter.
type Param struct {
	Name string
	Type string
}

// Method is a method or constructor declaration. Body holds the
// comment-stripped body text ("" for abstract/interface methods).
type Method struct {
	Name        string
	ReturnType  string
	Params      []Param
	Throws      []string
	Modifiers   []string
	Annotations []Annotation
	Constructor bool
	Body        string
	StartLine   int
	// BodyStartLine is the line holding the opening brace; Body's first
	// line maps onto it.
	BodyStartLine int
	EndLine       int
}

// Signature renders the identity signature: name(paramType,paramType)returnType.
func (m *Method) Signature() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Type)
	}
	b.WriteByte(')')
	b.WriteString(m.ReturnType)
	return b.String()
}

// HasAnnotation reports whether the method carries the named annotation.
func (m *Method) HasAnnotation(name string) bool {
	for _, a := range m.Annotations {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Field is a field declaration. Initializer keeps the literal text after '='.
type Field struct {
	Name        string
	Type        string
	Modifiers   []string
	Annotations []Annotation
	Initializer string
	Line        int
}

// Type is a class, interface, enum or annotation declaration. Generic
// signature text is retained as an opaque string in TypeParams.
type Type struct {
	Name          string
	QualifiedName string
	Kind          TypeKind
	Modifiers     []string
	TypeParams    string
	Extends       string
	Implements    []string
	Annotations   []Annotation
	Methods       []*Method
	Fields        []*Field
	StartLine     int
	EndLine       int
}

// HasAnnotation reports whether the type carries the named annotation.
func (t *Type) HasAnnotation(name string) bool {
	for _, a := range t.Annotations {
		if a.Name == name {
			return true
		}
	}
	return false
}

// MethodNamed returns the first method with the given name, or nil.
func (t *Type) MethodNamed(name string) *Method {
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// ConstantNames returns the names of static final fields, the usual carriers
// of named business constants.
func (t *Type) ConstantNames() map[string]bool {
	out := make(map[string]bool)
	for _, f := range t.Fields {
		if hasModifier(f.Modifiers, "static") && hasModifier(f.Modifiers, "final") {
			out[f.Name] = true
		}
	}
	return out
}

// FieldNames returns the set of declared field names.
func (t *Type) FieldNames() map[string]bool {
	out := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		out[f.Name] = true
	}
	return out
}

func hasModifier(mods []string, want string) bool {
	for _, m := range mods {
		if m == want {
			return true
		}
	}
	return false
}

// DeclTree is the parsed shape of one source file.
type DeclTree struct {
	Package string
	Imports []Import
	Types   []*Type
	Outcome Outcome
}

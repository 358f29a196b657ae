package jparse

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/vosbek/codeatlas/internal/diag"
)

var (
	packageRe = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)
	importRe  = regexp.MustCompile(`(?m)^\s*import\s+(static\s+)?([\w.*]+)\s*;`)
	typeRe    = regexp.MustCompile(`\b(class|interface|enum)\s+(\w+)|@\s*(interface)\s+(\w+)`)
	recordRe  = regexp.MustCompile(`(?m)^\s*(?:public\s+|final\s+)*record\s+(\w+)\s*\(`)

	extendsRe    = regexp.MustCompile(`\bextends\s+([^{]+?)(?:\bimplements\b|$)`)
	implementsRe = regexp.MustCompile(`\bimplements\s+([^{]+)$`)
	throwsRe     = regexp.MustCompile(`\bthrows\s+(.+)$`)

	// annotationRe tolerates one level of nested parens in arguments.
	annotationRe = regexp.MustCompile(`@\s*(\w+)(?:\(((?:[^()]|\([^()]*\))*)\))?`)

	identOnlyRe = regexp.MustCompile(`^\w+$`)
	enumConstRe = regexp.MustCompile(`^[A-Za-z_]\w*(?:\s*\([^)]*\))?(?:\s*,\s*[A-Za-z_]\w*(?:\s*\([^)]*\))?)*\s*,?$`)
)

var modifierSet = map[string]bool{
	"public": true, "private": true, "protected": true,
	"static": true, "final": true, "abstract": true,
	"synchronized": true, "native": true, "transient": true,
	"volatile": true, "strictfp": true, "default": true,
}

// ParseFile parses one file's bytes into a declaration tree. It never
// panics past the file boundary: any internal failure is converted to an
// OutcomeFailure tree plus an error diagnostic.
func ParseFile(relPath string, src []byte) (tree *DeclTree, diags []diag.Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			tree = &DeclTree{Outcome: OutcomeFailure}
			diags = append(diags, diag.Errorf(diag.CategoryParse, relPath, "parser fault recovered: %v", r))
		}
	}()

	content := string(stripBOM(src))
	code := blankComments(content)

	tree = &DeclTree{}
	if m := packageRe.FindStringSubmatch(code); m != nil {
		tree.Package = m[1]
	}
	for _, m := range importRe.FindAllStringSubmatch(code, -1) {
		tree.Imports = append(tree.Imports, Import{
			Path:   m[2],
			Static: strings.TrimSpace(m[1]) != "",
		})
	}

	consumedEnd := 0
	for _, loc := range typeRe.FindAllStringSubmatchIndex(code, -1) {
		if loc[0] < consumedEnd {
			// Inside an already-consumed body: nested declaration, reported
			// (and dropped) by the body scan.
			continue
		}
		t, end, ds := parseTypeAt(relPath, code, loc, tree.Package)
		diags = append(diags, ds...)
		if t != nil {
			tree.Types = append(tree.Types, t)
		}
		if end > consumedEnd {
			consumedEnd = end
		}
	}

	for _, m := range recordRe.FindAllStringSubmatchIndex(code, -1) {
		if m[0] < consumedEnd {
			continue
		}
		diags = append(diags, diag.New(diag.SeverityInfo, diag.CategoryParse, relPath,
			lineAt(code, m[0]), "unrecognized declaration form %q skipped", code[m[2]:m[3]]))
	}

	tree.Outcome = decideOutcome(tree, content, diags)
	if tree.Outcome == OutcomeFailure {
		diags = append(diags, diag.Errorf(diag.CategoryParse, relPath,
			"no recognizable declarations in file"))
	}
	return tree, diags
}

func decideOutcome(tree *DeclTree, content string, diags []diag.Diagnostic) Outcome {
	if len(tree.Types) == 0 && tree.Package == "" && strings.TrimSpace(content) != "" {
		return OutcomeFailure
	}
	for _, d := range diags {
		if d.Category == diag.CategoryParse && d.Severity != diag.SeverityInfo {
			return OutcomePartial
		}
	}
	return OutcomeSuccess
}

// parseTypeAt parses one top-level type declaration. loc is a submatch
// index slice from typeRe. Returns the type (nil when unparseable), the
// end index of the consumed region, and diagnostics.
func parseTypeAt(relPath, code string, loc []int, pkg string) (*Type, int, []diag.Diagnostic) {
	var diags []diag.Diagnostic

	kindStart, kindEnd, nameStart, nameEnd := loc[2], loc[3], loc[4], loc[5]
	if kindStart < 0 {
		// @interface alternative branch
		kindStart, kindEnd, nameStart, nameEnd = loc[6], loc[7], loc[8], loc[9]
	}
	kindWord := code[kindStart:kindEnd]
	name := code[nameStart:nameEnd]

	t := &Type{
		Name:      name,
		Kind:      typeKindFor(kindWord, loc[6] >= 0 && kindStart == loc[6]),
		StartLine: lineAt(code, loc[0]),
	}
	if pkg != "" {
		t.QualifiedName = pkg + "." + name
	} else {
		t.QualifiedName = name
	}

	// Leading annotations and modifiers live between the previous
	// statement boundary and the type keyword.
	headStart := statementStart(code, loc[0])
	head := code[headStart:loc[0]]
	t.Annotations, head = splitAnnotations(head)
	for _, tok := range strings.Fields(head) {
		if modifierSet[tok] {
			t.Modifiers = append(t.Modifiers, tok)
		}
	}

	// Header tail: generics, extends, implements, up to the opening brace.
	bracePos := -1
	for i := nameEnd; i < len(code); i++ {
		if code[i] == '{' {
			bracePos = i
			break
		}
		if code[i] == ';' {
			break
		}
	}
	if bracePos < 0 {
		diags = append(diags, diag.New(diag.SeverityWarning, diag.CategoryParse, relPath,
			t.StartLine, "type %s has no body; declaration kept without members", name))
		t.EndLine = t.StartLine
		return t, loc[1], diags
	}

	tail := code[nameEnd:bracePos]
	t.TypeParams, tail = splitGenerics(tail)
	parseSupers(t, tail)

	closing := matchBrace(code, bracePos)
	bodyEnd := closing
	consumed := closing + 1
	if closing < 0 {
		diags = append(diags, diag.New(diag.SeverityWarning, diag.CategoryParse, relPath,
			t.StartLine, "unterminated body for type %s; parsing to end of file", name))
		bodyEnd = len(code)
		consumed = len(code)
	}
	t.EndLine = lineAt(code, bodyEnd)

	diags = append(diags, scanTypeBody(relPath, code, bracePos+1, bodyEnd, t)...)
	return t, consumed, diags
}

func typeKindFor(kindWord string, atInterface bool) TypeKind {
	if atInterface {
		return KindAnnotation
	}
	switch kindWord {
	case "interface":
		return KindInterface
	case "enum":
		return KindEnum
	default:
		return KindClass
	}
}

// parseSupers fills Extends/Implements from the header tail. Interface
// extension lists are recorded as implemented-interface references.
func parseSupers(t *Type, tail string) {
	if m := extendsRe.FindStringSubmatch(tail); m != nil {
		refs := splitRefs(m[1])
		if t.Kind == KindInterface {
			t.Implements = append(t.Implements, refs...)
		} else if len(refs) > 0 {
			t.Extends = refs[0]
		}
	}
	if m := implementsRe.FindStringSubmatch(tail); m != nil {
		t.Implements = append(t.Implements, splitRefs(m[1])...)
	}
}

// splitRefs splits a comma-separated type reference list, stripping
// generic arguments so references stay comparable by name.
func splitRefs(s string) []string {
	var out []string
	for _, part := range splitTopLevel(s, ',') {
		ref := stripGenerics(strings.TrimSpace(part))
		if ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// statementStart returns the index just past the previous ';', '{' or '}'.
func statementStart(code string, from int) int {
	for i := from - 1; i >= 0; i-- {
		switch code[i] {
		case ';', '{', '}':
			return i + 1
		}
	}
	return 0
}

// splitGenerics splits a leading balanced <...> group off the tail.
func splitGenerics(tail string) (generics, rest string) {
	s := strings.TrimSpace(tail)
	if !strings.HasPrefix(s, "<") {
		return "", tail
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return s[:i+1], s[i+1:]
			}
		}
	}
	return "", tail
}

// stripGenerics removes generic argument text from a type reference.
func stripGenerics(ref string) string {
	if i := strings.IndexByte(ref, '<'); i >= 0 {
		return strings.TrimSpace(ref[:i])
	}
	return ref
}

// splitAnnotations extracts annotation usages from head text and returns
// the remaining text with annotations blanked.
func splitAnnotations(head string) ([]Annotation, string) {
	var anns []Annotation
	for _, m := range annotationRe.FindAllStringSubmatch(head, -1) {
		anns = append(anns, Annotation{Name: m[1], Args: strings.TrimSpace(m[2])})
	}
	if len(anns) == 0 {
		return nil, head
	}
	return anns, annotationRe.ReplaceAllString(head, " ")
}

// stripBOM removes a UTF-8 byte order mark (common in Windows-era trees).
func stripBOM(src []byte) []byte {
	return bytes.TrimPrefix(src, []byte{0xEF, 0xBB, 0xBF})
}

// lineAt returns the 1-based line number of idx.
func lineAt(s string, idx int) int {
	if idx > len(s) {
		idx = len(s)
	}
	if idx < 0 {
		idx = 0
	}
	return strings.Count(s[:idx], "\n") + 1
}

// blankComments replaces comment text with spaces, preserving newlines so
// byte offsets keep mapping to the original line numbers. String, char and
// text-block literals are left intact.
func blankComments(s string) string {
	out := []byte(s)
	i := 0
	for i < len(out) {
		c := out[i]
		switch {
		case c == '"' || c == '\'':
			i = skipLiteralBytes(out, i)
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			out[i], out[i+1] = ' ', ' '
			i += 2
			for i < len(out) {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i += 2
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
		default:
			i++
		}
	}
	return string(out)
}

// skipLiteral advances past a string/char/text-block literal starting at i.
func skipLiteral(s string, i int) int {
	return skipLiteralBytes([]byte(s), i)
}

func skipLiteralBytes(s []byte, i int) int {
	quote := s[i]
	if quote == '"' && i+2 < len(s) && s[i+1] == '"' && s[i+2] == '"' {
		// text block
		for j := i + 3; j+2 < len(s); j++ {
			if s[j] == '"' && s[j+1] == '"' && s[j+2] == '"' {
				return j + 3
			}
		}
		return len(s)
	}
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		case '\n':
			// unterminated literal; stop at line end for tolerance
			return j
		}
	}
	return len(s)
}

// matchBrace returns the index of the '}' matching the '{' at open,
// skipping literals. Returns -1 when unbalanced.
func matchBrace(s string, open int) int {
	depth := 0
	i := open
	for i < len(s) {
		switch s[i] {
		case '"', '\'':
			i = skipLiteral(s, i)
		case '{':
			depth++
			i++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
			i++
		default:
			i++
		}
	}
	return -1
}

// splitTopLevel splits on sep outside of <...>, (...) and [...] nesting.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

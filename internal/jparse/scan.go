package jparse

import (
	"regexp"
	"strings"

	"github.com/vosbek/codeatlas/internal/diag"
)

var (
	nestedTypeRe = regexp.MustCompile(`\b(class|interface|enum)\s+\w+`)
	callRe       = regexp.MustCompile(`(\w+)\s*\(`)
)

var controlKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"catch": true, "return": true, "new": true, "super": true,
	"this": true, "synchronized": true, "assert": true, "throw": true,
	"do": true, "else": true, "try": true, "case": true,
}

// scanTypeBody walks code[start:end), the inside of a type body, and
// attaches methods and fields to t. Nested type declarations are dropped
// with a warning; the outer declaration is kept.
func scanTypeBody(relPath, code string, start, end int, t *Type) []diag.Diagnostic {
	var diags []diag.Diagnostic
	i := start
	headStart := i
	for i < end {
		switch code[i] {
		case '"', '\'':
			i = skipLiteral(code, i)
		case ';':
			d := consumeMember(relPath, code, headStart, i, t)
			diags = append(diags, d...)
			i++
			headStart = i
		case '{':
			head := strings.TrimSpace(code[headStart:i])
			closing := matchBrace(code, i)
			if closing < 0 || closing > end {
				diags = append(diags, diag.New(diag.SeverityWarning, diag.CategoryParse, relPath,
					lineAt(code, i), "unbalanced braces in body of %s", t.Name))
				closing = end
			}
			switch {
			case nestedTypeRe.MatchString(stripAnnotationText(head)):
				diags = append(diags, diag.New(diag.SeverityWarning, diag.CategoryParse, relPath,
					lineAt(code, headStart), "nested declaration inside %s dropped", t.Name))
				i = closing + 1
				headStart = i
			case looksLikeMethod(head):
				m := parseMethodHead(head)
				if m == nil || (m.ReturnType == "" && m.Name != t.Name) {
					diags = append(diags, diag.New(diag.SeverityInfo, diag.CategoryParse, relPath,
						lineAt(code, headStart), "unrecognized member of %s skipped", t.Name))
				} else {
					m.Constructor = m.ReturnType == "" && m.Name == t.Name
					m.Body = code[i+1 : closing]
					m.StartLine = lineAt(code, firstNonSpace(code, headStart, i))
					m.BodyStartLine = lineAt(code, i)
					m.EndLine = lineAt(code, closing)
					t.Methods = append(t.Methods, m)
				}
				i = closing + 1
				headStart = i
			case strings.Contains(head, "="):
				// Array or anonymous-class initializer: the braces belong to
				// the value, keep accumulating until the terminating ';'.
				i = closing + 1
			default:
				// static or instance initializer block
				i = closing + 1
				headStart = i
			}
		case '}':
			i++
			headStart = i
		default:
			i++
		}
	}
	if head := strings.TrimSpace(code[headStart:min(i, end)]); head != "" {
		diags = append(diags, diag.New(diag.SeverityInfo, diag.CategoryParse, relPath,
			lineAt(code, headStart), "trailing tokens in %s ignored", t.Name))
	}
	return diags
}

// consumeMember classifies a semicolon-terminated member head.
func consumeMember(relPath, code string, headStart, semi int, t *Type) []diag.Diagnostic {
	head := strings.TrimSpace(code[headStart:semi])
	if head == "" {
		return nil
	}
	if t.Kind == KindEnum && enumConstRe.MatchString(flattenWS(head)) {
		return nil
	}
	if looksLikeMethod(head) {
		// abstract or interface method, no body
		if m := parseMethodHead(head); m != nil && m.ReturnType != "" {
			m.StartLine = lineAt(code, firstNonSpace(code, headStart, semi))
			m.EndLine = m.StartLine
			t.Methods = append(t.Methods, m)
			return nil
		}
	} else if f := parseField(head); f != nil {
		f.Line = lineAt(code, firstNonSpace(code, headStart, semi))
		t.Fields = append(t.Fields, f)
		return nil
	}
	return []diag.Diagnostic{diag.New(diag.SeverityInfo, diag.CategoryParse, relPath,
		lineAt(code, headStart), "unrecognized member of %s skipped", t.Name)}
}

// looksLikeMethod reports whether a member head has a parameter list before
// any assignment, once annotations are out of the way.
func looksLikeMethod(head string) bool {
	s := stripAnnotationText(head)
	pi := strings.IndexByte(s, '(')
	if pi < 0 {
		return false
	}
	ei := strings.IndexByte(s, '=')
	return ei < 0 || pi < ei
}

// parseMethodHead parses everything before a method's opening brace (or
// terminating semicolon). Returns nil when the head cannot be a method.
func parseMethodHead(head string) *Method {
	anns, rest := splitAnnotations(head)
	rest = flattenWS(rest)

	pi := strings.IndexByte(rest, '(')
	if pi < 0 {
		return nil
	}
	pe := matchingParen(rest, pi)
	if pe < 0 {
		return nil
	}

	toks := tokensGenericAware(strings.TrimSpace(rest[:pi]))
	if len(toks) == 0 {
		return nil
	}
	name := toks[len(toks)-1]
	if !identOnlyRe.MatchString(name) || controlKeywords[name] {
		return nil
	}

	m := &Method{Name: name, Annotations: anns}
	for _, tok := range toks[:len(toks)-1] {
		switch {
		case modifierSet[tok]:
			m.Modifiers = append(m.Modifiers, tok)
		case strings.HasPrefix(tok, "<"):
			// method-level type parameters, kept opaque
		default:
			m.ReturnType = tok
		}
	}
	m.Params = parseParams(rest[pi+1 : pe])
	if tm := throwsRe.FindStringSubmatch(strings.TrimSpace(rest[pe+1:])); tm != nil {
		for _, th := range splitTopLevel(tm[1], ',') {
			if th = strings.TrimSpace(th); th != "" {
				m.Throws = append(m.Throws, stripGenerics(th))
			}
		}
	}
	return m
}

// parseField parses a field head, with optional initializer. Returns nil
// when the head cannot be a field.
func parseField(head string) *Field {
	anns, rest := splitAnnotations(head)
	rest = flattenWS(rest)

	init := ""
	if eq := indexTopLevelEq(rest); eq >= 0 {
		init = strings.TrimSpace(rest[eq+1:])
		rest = rest[:eq]
	}
	toks := tokensGenericAware(strings.TrimSpace(rest))
	var mods, rem []string
	for _, tok := range toks {
		if modifierSet[tok] {
			mods = append(mods, tok)
		} else {
			rem = append(rem, tok)
		}
	}
	if len(rem) < 2 {
		return nil
	}
	name := strings.TrimSuffix(rem[len(rem)-1], "[]")
	if !identOnlyRe.MatchString(name) {
		return nil
	}
	return &Field{
		Name:        name,
		Type:        strings.Join(rem[:len(rem)-1], " "),
		Modifiers:   mods,
		Annotations: anns,
		Initializer: init,
	}
}

// parseParams splits a parameter list into name/type pairs.
func parseParams(s string) []Param {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var params []Param
	for _, part := range splitTopLevel(s, ',') {
		toks := tokensGenericAware(strings.TrimSpace(part))
		var kept []string
		for _, tok := range toks {
			if tok != "final" {
				kept = append(kept, tok)
			}
		}
		switch len(kept) {
		case 0:
		case 1:
			params = append(params, Param{Type: kept[0]})
		default:
			params = append(params, Param{
				Name: kept[len(kept)-1],
				Type: strings.Join(kept[:len(kept)-1], " "),
			})
		}
	}
	return params
}

// CallSites returns the distinct callee names appearing in a method body,
// in first-seen order. Control-flow keywords and constructor calls are
// filtered out.
func CallSites(body string) []string {
	blanked := blankComments(body)
	seen := make(map[string]bool)
	var out []string
	for _, m := range callRe.FindAllStringSubmatch(blanked, -1) {
		name := m[1]
		if controlKeywords[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// tokensGenericAware splits on whitespace but keeps <...> groups glued to
// their preceding token, so "Map<String, List<Foo>> names" yields two tokens.
func tokensGenericAware(s string) []string {
	var toks []string
	var cur strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '<':
			depth++
			cur.WriteByte(c)
		case c == '>':
			depth--
			cur.WriteByte(c)
		case (c == ' ' || c == '\t') && depth == 0:
			if cur.Len() > 0 {
				toks = append(toks, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks
}

// indexTopLevelEq finds the first assignment '=' that is not part of a
// comparison operator.
func indexTopLevelEq(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			continue
		}
		if i > 0 && (s[i-1] == '=' || s[i-1] == '!' || s[i-1] == '<' || s[i-1] == '>') {
			continue
		}
		if i+1 < len(s) && s[i+1] == '=' {
			i++
			continue
		}
		return i
	}
	return -1
}

// matchingParen returns the index of the ')' matching the '(' at open.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func stripAnnotationText(s string) string {
	return annotationRe.ReplaceAllString(s, " ")
}

func flattenWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonSpace(code string, from, to int) int {
	for i := from; i < to; i++ {
		switch code[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return i
		}
	}
	return from
}

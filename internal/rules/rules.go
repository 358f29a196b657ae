// Package rules extracts business rule records from method bodies with a
// co-occurrence based confidence score.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vosbek/codeatlas/internal/jparse"
)

// Kind classifies what a rule governs.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindCalculation Kind = "calculation"
	KindWorkflow    Kind = "workflow"
)

// Rule is one extracted business rule. Low-confidence rules are flagged,
// never dropped.
type Rule struct {
	Kind          Kind     `json:"kind"`
	Description   string   `json:"description"`
	Confidence    float64  `json:"confidence"`
	LowConfidence bool     `json:"low_confidence"`
	TypeQN        string   `json:"type_qn"`
	MethodName    string   `json:"method_name"`
	FilePath      string   `json:"file_path"`
	StartLine     int      `json:"start_line"`
	EndLine       int      `json:"end_line"`
	Signals       []string `json:"signals"`
}

// lowConfidenceCeiling is the score at or below which a rule is flagged.
const lowConfidenceCeiling = 0.4

var (
	conditionRe  = regexp.MustCompile(`\bif\s*\((.+)\)`)
	comparisonRe = regexp.MustCompile(`[<>]=?|[!=]=`)
	constantRe   = regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}\b`)
	numericRe    = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	assignRe     = regexp.MustCompile(`\b([\w.]+)\s*([-+*/]?=)\s*(.+?);`)
	arithmeticRe = regexp.MustCompile(`[-+*/%]`)
	workflowRe   = regexp.MustCompile(`\b(\w*(?:save|persist|update|insert|delete|submit|dispatch|approve|reject|send)\w*)\s*\(`)
	throwRe      = regexp.MustCompile(`\bthrow\s+new\s+(\w+)`)
	wordRe       = regexp.MustCompile(`\w+`)
)

// baseConfidence is the single-signal floor per rule kind; each extra
// co-occurring signal adds a fixed increment.
var baseConfidence = map[Kind]float64{
	KindValidation:  0.35,
	KindCalculation: 0.32,
	KindWorkflow:    0.30,
}

const signalIncrement = 0.18

// Extract scans one method body. Pure; runs per file on the worker pool.
func Extract(relPath string, t *jparse.Type, m *jparse.Method) []Rule {
	if m.Body == "" {
		return nil
	}
	var out []Rule
	constants := t.ConstantNames()
	fields := t.FieldNames()
	lines := strings.Split(m.Body, "\n")

	// Body starts right after the opening brace, so its first line sits on
	// the brace line, not on the declaration line.
	base := m.BodyStartLine
	if base == 0 {
		base = m.StartLine
	}
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		lineNo := base + i
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "*") {
			continue
		}

		if cm := conditionRe.FindStringSubmatch(line); cm != nil {
			if r := validationRule(cm[1], lines, i, constants, fields); r != nil {
				finishRule(r, relPath, t, m, lineNo)
				out = append(out, *r)
			}
		}
		if am := assignRe.FindStringSubmatch(line); am != nil {
			if r := calculationRule(am, constants, fields); r != nil {
				finishRule(r, relPath, t, m, lineNo)
				out = append(out, *r)
			}
		}
		if wm := workflowRe.FindStringSubmatch(line); wm != nil {
			if r := workflowRule(wm[1], lines, i); r != nil {
				finishRule(r, relPath, t, m, lineNo)
				out = append(out, *r)
			}
		}
	}
	return out
}

// validationRule fires on a branch condition that compares values. Extra
// signals: a named constant in the condition, a field operand, and a throw
// in the guarded block.
func validationRule(cond string, lines []string, at int, constants, fields map[string]bool) *Rule {
	if !comparisonRe.MatchString(cond) {
		return nil
	}
	signals := []string{"comparison_condition"}
	if usesNamed(cond, constants) || (constantRe.MatchString(cond) && numericRe.MatchString(cond)) {
		signals = append(signals, "named_constant")
	} else if constantRe.MatchString(cond) || numericRe.MatchString(cond) {
		signals = append(signals, "literal_threshold")
	}
	if usesNamed(cond, fields) {
		signals = append(signals, "field_operand")
	}
	if throwsNearby(lines, at) {
		signals = append(signals, "guarded_throw")
	}
	return &Rule{
		Kind:        KindValidation,
		Description: fmt.Sprintf("validation: condition %q", strings.TrimSpace(cond)),
		Signals:     signals,
	}
}

// calculationRule fires on an arithmetic assignment. Extra signals: the
// target is a declared field, a named constant participates, a compound
// operator is used.
func calculationRule(am []string, constants, fields map[string]bool) *Rule {
	target, op, expr := am[1], am[2], am[3]
	compound := len(op) == 2
	if !compound && !arithmeticRe.MatchString(expr) {
		return nil
	}
	if strings.HasPrefix(expr, "=") || strings.Contains(op, "==") {
		return nil
	}
	signals := []string{"arithmetic_assignment"}
	base := target
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	if fields[base] || strings.HasPrefix(target, "this.") {
		signals = append(signals, "field_target")
	}
	if usesNamed(expr, constants) {
		signals = append(signals, "named_constant")
	}
	if compound {
		signals = append(signals, "compound_operator")
	}
	return &Rule{
		Kind:        KindCalculation,
		Description: fmt.Sprintf("calculation: %s %s %s", target, op, strings.TrimSpace(expr)),
		Signals:     signals,
	}
}

// workflowRule fires on a persistence/dispatch-shaped call. Extra signal:
// the call sits under a branch, i.e. a condition gates the state change.
func workflowRule(callee string, lines []string, at int) *Rule {
	signals := []string{"state_change_call"}
	for j := at - 1; j >= 0 && j >= at-4; j-- {
		if conditionRe.MatchString(lines[j]) {
			signals = append(signals, "condition_gated")
			break
		}
	}
	return &Rule{
		Kind:        KindWorkflow,
		Description: fmt.Sprintf("workflow: state change via %s()", callee),
		Signals:     signals,
	}
}

func finishRule(r *Rule, relPath string, t *jparse.Type, m *jparse.Method, line int) {
	r.TypeQN = t.QualifiedName
	r.MethodName = m.Name
	r.FilePath = relPath
	r.StartLine = line
	r.EndLine = line
	r.Confidence = confidence(r.Kind, len(r.Signals))
	r.LowConfidence = r.Confidence <= lowConfidenceCeiling
}

// confidence grows linearly with co-occurring signals and clamps to [0,1].
func confidence(kind Kind, signals int) float64 {
	if signals < 1 {
		signals = 1
	}
	c := baseConfidence[kind] + signalIncrement*float64(signals-1)
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

func usesNamed(expr string, names map[string]bool) bool {
	for _, tok := range wordRe.FindAllString(expr, -1) {
		if names[tok] {
			return true
		}
	}
	return false
}

func throwsNearby(lines []string, at int) bool {
	for j := at; j < len(lines) && j <= at+3; j++ {
		if throwRe.MatchString(lines[j]) {
			return true
		}
	}
	return false
}

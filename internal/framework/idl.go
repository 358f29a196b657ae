package framework

import (
	"regexp"
	"strings"

	"github.com/vosbek/codeatlas/internal/diag"
)

// IDLOperation is one operation signature inside an IDL interface.
type IDLOperation struct {
	Name       string
	ReturnType string
	Params     string // literal parameter text
}

// IDLAttribute is one attribute declaration inside an IDL interface.
type IDLAttribute struct {
	Name string
	Type string
}

// IDLInterface is an interface declaration from a CORBA IDL file.
type IDLInterface struct {
	Name       string
	Module     string
	Inherits   []string
	Operations []IDLOperation
	Attributes []IDLAttribute
	ConfigPath string
	Line       int
}

var (
	idlModuleRe    = regexp.MustCompile(`^module\s+(\w+)`)
	idlInterfaceRe = regexp.MustCompile(`^(?:abstract\s+|local\s+)?interface\s+(\w+)(?:\s*:\s*([\w\s,:]+?))?\s*[{;]?$`)
	idlOpRe        = regexp.MustCompile(`^(?:oneway\s+)?([\w:<>]+)\s+(\w+)\s*\(([^)]*)\)`)
	idlAttrRe      = regexp.MustCompile(`\battribute\s+([\w:<>]+)\s+(\w+)`)
)

// ParseIDL is a line-oriented best-effort IDL reader: modules, interfaces
// with inheritance, operations and attributes. Anything unrecognized is
// skipped silently; only an empty result for non-empty input is diagnosed.
func ParseIDL(relPath string, src []byte) ([]IDLInterface, []diag.Diagnostic) {
	lines := strings.Split(string(src), "\n")
	var out []IDLInterface
	module := ""

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(stripIDLComment(lines[i]))
		if m := idlModuleRe.FindStringSubmatch(line); m != nil {
			module = m[1]
			continue
		}
		m := idlInterfaceRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		iface := IDLInterface{
			Name:       m[1],
			Module:     module,
			ConfigPath: relPath,
			Line:       i + 1,
		}
		if m[2] != "" {
			for _, inh := range strings.Split(m[2], ",") {
				if inh = strings.TrimSpace(inh); inh != "" {
					iface.Inherits = append(iface.Inherits, inh)
				}
			}
		}
		// forward declaration: "interface Foo;"
		if strings.HasSuffix(line, ";") {
			continue
		}
		for i++; i < len(lines); i++ {
			body := strings.TrimSpace(stripIDLComment(lines[i]))
			if strings.HasPrefix(body, "}") {
				break
			}
			if am := idlAttrRe.FindStringSubmatch(body); am != nil {
				iface.Attributes = append(iface.Attributes, IDLAttribute{Name: am[2], Type: am[1]})
				continue
			}
			if om := idlOpRe.FindStringSubmatch(body); om != nil && om[1] != "attribute" {
				iface.Operations = append(iface.Operations, IDLOperation{
					Name:       om[2],
					ReturnType: om[1],
					Params:     strings.TrimSpace(om[3]),
				})
			}
		}
		out = append(out, iface)
	}

	var diags []diag.Diagnostic
	if len(out) == 0 && strings.TrimSpace(string(src)) != "" {
		diags = append(diags, diag.Infof(diag.CategoryFramework, relPath,
			"no interfaces recognized in idl file"))
	}
	return out, diags
}

func stripIDLComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

// Package framework tags declaration trees with legacy framework roles by
// evaluating a declarative rule table and cross-matching configuration
// files against code candidates.
package framework

import (
	"sort"
	"strings"

	"github.com/vosbek/codeatlas/internal/jparse"
)

// ArtifactKind is the framework role an artifact plays.
type ArtifactKind string

const (
	WebAction            ArtifactKind = "web_action"
	DistributedInterface ArtifactKind = "distributed_interface"
	InjectedComponent    ArtifactKind = "injected_component"
)

// MatchState says which sides of the code/configuration cross-reference
// were found. Consumers must handle all three.
type MatchState string

const (
	StateMapped   MatchState = "mapped"   // code and configuration agree
	StateOrphan   MatchState = "orphan"   // configuration only
	StateUnmapped MatchState = "unmapped" // code only
)

// Artifact decorates a JavaType (and optionally a method) with a detected
// framework role. TypeQN is empty for orphans; ConfigPath is empty for
// unmapped candidates.
type Artifact struct {
	Kind       ArtifactKind      `json:"kind"`
	State      MatchState        `json:"state"`
	TypeQN     string            `json:"type_qn,omitempty"`
	MethodName string            `json:"method_name,omitempty"`
	FilePath   string            `json:"file_path,omitempty"`
	ConfigPath string            `json:"config_path,omitempty"`
	Line       int               `json:"line,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DetectRule pairs a structural predicate with the artifact kind it
// produces. Match returns role attributes when the type qualifies.
type DetectRule struct {
	Name  string
	Kind  ArtifactKind
	Match func(t *jparse.Type) (map[string]string, bool)
}

// Rules is the default rule table. Order matters only for attribute
// precedence; a type may produce several artifacts.
var Rules = []DetectRule{
	{
		Name: "struts-action",
		Kind: WebAction,
		Match: func(t *jparse.Type) (map[string]string, bool) {
			base := simpleName(t.Extends)
			if t.Kind != jparse.KindClass || !strings.Contains(base, "Action") ||
				strings.Contains(base, "ActionForm") {
				return nil, false
			}
			attrs := map[string]string{"role": "action"}
			if m := executeShaped(t); m != nil {
				attrs["entry_method"] = m.Name
			}
			return attrs, true
		},
	},
	{
		Name: "struts-form",
		Kind: WebAction,
		Match: func(t *jparse.Type) (map[string]string, bool) {
			if t.Kind != jparse.KindClass || !strings.Contains(simpleName(t.Extends), "ActionForm") {
				return nil, false
			}
			return map[string]string{"role": "form"}, true
		},
	},
	{
		Name: "corba-servant",
		Kind: DistributedInterface,
		Match: func(t *jparse.Type) (map[string]string, bool) {
			base := simpleName(t.Extends)
			if !strings.HasSuffix(base, "POA") {
				return nil, false
			}
			return map[string]string{"role": "servant", "idl_name": strings.TrimSuffix(base, "POA")}, true
		},
	},
	{
		Name: "corba-helper",
		Kind: DistributedInterface,
		Match: func(t *jparse.Type) (map[string]string, bool) {
			if t.Kind != jparse.KindClass || !strings.HasSuffix(t.Name, "Helper") {
				return nil, false
			}
			return map[string]string{"role": "helper", "idl_name": strings.TrimSuffix(t.Name, "Helper")}, true
		},
	},
	{
		Name: "corba-holder",
		Kind: DistributedInterface,
		Match: func(t *jparse.Type) (map[string]string, bool) {
			if t.Kind != jparse.KindClass || !strings.HasSuffix(t.Name, "Holder") {
				return nil, false
			}
			return map[string]string{"role": "holder", "idl_name": strings.TrimSuffix(t.Name, "Holder")}, true
		},
	},
	{
		Name: "remote-interface",
		Kind: DistributedInterface,
		Match: func(t *jparse.Type) (map[string]string, bool) {
			if t.Kind != jparse.KindInterface {
				return nil, false
			}
			for _, ref := range t.Implements {
				if simpleName(ref) == "Remote" {
					return map[string]string{"role": "remote", "idl_name": t.Name}, true
				}
			}
			return nil, false
		},
	},
	{
		Name: "injected-component",
		Kind: InjectedComponent,
		Match: func(t *jparse.Type) (map[string]string, bool) {
			var marks []string
			for _, name := range componentAnnotations {
				if t.HasAnnotation(name) {
					marks = append(marks, name)
				}
			}
			for _, f := range t.Fields {
				for _, a := range f.Annotations {
					if injectionAnnotations[a.Name] {
						marks = append(marks, a.Name)
					}
				}
			}
			if len(marks) == 0 {
				return nil, false
			}
			return map[string]string{"role": "injected", "annotations": strings.Join(dedupe(marks), ",")}, true
		},
	},
}

var componentAnnotations = []string{
	"Component", "Service", "Repository", "Controller",
	"Stateless", "Stateful", "MessageDriven",
}

var injectionAnnotations = map[string]bool{
	"Autowired": true, "Inject": true, "Resource": true, "EJB": true,
}

// Candidates evaluates the rule table against one file's declaration
// tree. Pure; safe to run per file in parallel. Every candidate starts
// unmapped until CrossMatch sees the configuration side.
func Candidates(relPath string, tree *jparse.DeclTree) []Artifact {
	var out []Artifact
	for _, t := range tree.Types {
		for _, rule := range Rules {
			attrs, ok := rule.Match(t)
			if !ok {
				continue
			}
			attrs["rule"] = rule.Name
			a := Artifact{
				Kind:       rule.Kind,
				State:      StateUnmapped,
				TypeQN:     t.QualifiedName,
				FilePath:   relPath,
				Line:       t.StartLine,
				Attributes: attrs,
			}
			if m := attrs["entry_method"]; m != "" {
				a.MethodName = m
			}
			out = append(out, a)
		}
	}
	return out
}

// executeShaped finds the dispatch method of an action class: execute or
// perform by name, or any method taking framework mapping/form params.
func executeShaped(t *jparse.Type) *jparse.Method {
	if m := t.MethodNamed("execute"); m != nil {
		return m
	}
	if m := t.MethodNamed("perform"); m != nil {
		return m
	}
	for _, m := range t.Methods {
		for _, p := range m.Params {
			base := simpleName(p.Type)
			if strings.Contains(base, "ActionMapping") || strings.Contains(base, "ActionForm") {
				return m
			}
		}
	}
	return nil
}

func simpleName(ref string) string {
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// sortArtifacts fixes emission order so repeated runs produce identical
// batches.
func sortArtifacts(arts []Artifact) {
	sort.Slice(arts, func(i, j int) bool {
		a, b := arts[i], arts[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.TypeQN != b.TypeQN {
			return a.TypeQN < b.TypeQN
		}
		if a.ConfigPath != b.ConfigPath {
			return a.ConfigPath < b.ConfigPath
		}
		return a.Attributes["path"] < b.Attributes["path"]
	})
}

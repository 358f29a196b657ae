package framework

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vosbek/codeatlas/internal/diag"
	"github.com/vosbek/codeatlas/internal/walker"
)

// ConfigSet accumulates the configuration side of a module: struts
// mappings, DI bean definitions, IDL interfaces.
type ConfigSet struct {
	Actions    []StrutsAction
	FormBeans  []FormBean
	Beans      []BeanDef
	Interfaces []IDLInterface
}

// Add routes one walker-yielded companion file into the set. Unrecognized
// XML is ignored; parse failures come back as diagnostics.
func (cs *ConfigSet) Add(f walker.SourceFile, data []byte) []diag.Diagnostic {
	switch f.Kind {
	case walker.KindXML:
		if IsStrutsConfig(f.RelPath, data) {
			actions, beans, diags := ParseStrutsConfig(f.RelPath, data)
			cs.Actions = append(cs.Actions, actions...)
			cs.FormBeans = append(cs.FormBeans, beans...)
			return diags
		}
		if IsBeanConfig(data) {
			beans, diags := ParseBeanConfig(f.RelPath, data)
			cs.Beans = append(cs.Beans, beans...)
			return diags
		}
	case walker.KindIDL:
		ifaces, diags := ParseIDL(f.RelPath, data)
		cs.Interfaces = append(cs.Interfaces, ifaces...)
		return diags
	}
	return nil
}

// CrossMatch reconciles code candidates with the configuration side.
// knownTypes holds every qualified name declared in the module, used to
// tell "class exists but was not a candidate" from "class missing".
// Absence of a match is data: orphan and unmapped artifacts are emitted,
// never dropped.
func CrossMatch(cands []Artifact, knownTypes map[string]bool, cfg *ConfigSet) ([]Artifact, []diag.Diagnostic) {
	var out []Artifact
	var diags []diag.Diagnostic

	byQN := map[string]int{} // candidate index by qualified name
	bySimple := map[string]int{}
	consumed := make([]bool, len(cands))
	for i, c := range cands {
		if _, dup := byQN[c.TypeQN]; !dup {
			byQN[c.TypeQN] = i
		}
		sn := simpleName(c.TypeQN)
		if _, dup := bySimple[sn]; !dup {
			bySimple[sn] = i
		}
	}
	lookup := func(classRef string) (int, bool) {
		if i, ok := byQN[classRef]; ok {
			return i, true
		}
		i, ok := bySimple[simpleName(classRef)]
		return i, ok
	}

	for _, act := range cfg.Actions {
		idx, ok := -1, false
		if act.Type != "" {
			idx, ok = lookup(act.Type)
		}
		if ok && cands[idx].Kind == WebAction {
			consumed[idx] = true
			out = append(out, mappedFrom(cands[idx], act.ConfigPath, actionAttrs(act)))
			continue
		}
		out = append(out, Artifact{
			Kind:       WebAction,
			State:      StateOrphan,
			ConfigPath: act.ConfigPath,
			Attributes: actionAttrs(act),
		})
		diags = append(diags, diag.Warnf(diag.CategoryFramework, act.ConfigPath,
			"action %s maps class %q with no matching declaration", act.Path, act.Type))
	}

	for _, fb := range cfg.FormBeans {
		if idx, ok := lookup(fb.Type); ok && cands[idx].Kind == WebAction {
			consumed[idx] = true
			out = append(out, mappedFrom(cands[idx], fb.ConfigPath, map[string]string{
				"role": "form", "bean_name": fb.Name,
			}))
			continue
		}
		out = append(out, Artifact{
			Kind:       WebAction,
			State:      StateOrphan,
			ConfigPath: fb.ConfigPath,
			Attributes: map[string]string{"role": "form", "bean_name": fb.Name, "class": fb.Type},
		})
		diags = append(diags, diag.Warnf(diag.CategoryFramework, fb.ConfigPath,
			"form bean %s references class %q with no matching declaration", fb.Name, fb.Type))
	}

	for _, b := range cfg.Beans {
		if idx, ok := lookup(b.Class); ok && cands[idx].Kind == InjectedComponent {
			consumed[idx] = true
			out = append(out, mappedFrom(cands[idx], b.ConfigPath, map[string]string{"bean_id": b.ID}))
			continue
		}
		if knownTypes[b.Class] {
			// class declared without DI annotations: the bean definition is
			// the only framework signal, still a mapped component
			out = append(out, Artifact{
				Kind:       InjectedComponent,
				State:      StateMapped,
				TypeQN:     b.Class,
				ConfigPath: b.ConfigPath,
				Attributes: map[string]string{"role": "injected", "bean_id": b.ID},
			})
			continue
		}
		out = append(out, Artifact{
			Kind:       InjectedComponent,
			State:      StateOrphan,
			ConfigPath: b.ConfigPath,
			Attributes: map[string]string{"role": "injected", "bean_id": b.ID, "class": b.Class},
		})
		diags = append(diags, diag.Warnf(diag.CategoryFramework, b.ConfigPath,
			"bean %s references class %q with no matching declaration", b.ID, b.Class))
	}

	matchedIfaces := map[string]bool{}
	for i, c := range cands {
		if consumed[i] || c.Kind != DistributedInterface {
			continue
		}
		want := c.Attributes["idl_name"]
		for _, iface := range cfg.Interfaces {
			if iface.Name != want {
				continue
			}
			consumed[i] = true
			matchedIfaces[iface.Name] = true
			out = append(out, mappedFrom(c, iface.ConfigPath, map[string]string{
				"idl_module": iface.Module,
				"operations": strconv.Itoa(len(iface.Operations)),
			}))
			break
		}
	}
	for _, iface := range cfg.Interfaces {
		if matchedIfaces[iface.Name] {
			continue
		}
		out = append(out, Artifact{
			Kind:       DistributedInterface,
			State:      StateOrphan,
			ConfigPath: iface.ConfigPath,
			Line:       iface.Line,
			Attributes: map[string]string{
				"idl_name":   iface.Name,
				"idl_module": iface.Module,
				"operations": strconv.Itoa(len(iface.Operations)),
			},
		})
		diags = append(diags, diag.Warnf(diag.CategoryFramework, iface.ConfigPath,
			"idl interface %s has no matching declaration", iface.Name))
	}

	for i, c := range cands {
		if consumed[i] {
			continue
		}
		out = append(out, c) // stays unmapped
		diags = append(diags, diag.Infof(diag.CategoryFramework, c.FilePath,
			"%s candidate %s has no configuration entry", c.Kind, c.TypeQN))
	}

	sortArtifacts(out)
	return out, diags
}

// mappedFrom copies a candidate into its mapped form, merging extra
// configuration attributes over the rule attributes.
func mappedFrom(c Artifact, configPath string, extra map[string]string) Artifact {
	m := c
	m.State = StateMapped
	m.ConfigPath = configPath
	m.Attributes = map[string]string{}
	for k, v := range c.Attributes {
		m.Attributes[k] = v
	}
	for k, v := range extra {
		m.Attributes[k] = v
	}
	return m
}

func actionAttrs(act StrutsAction) map[string]string {
	attrs := map[string]string{"role": "action", "path": act.Path}
	if act.Type != "" {
		attrs["class"] = act.Type
	}
	if act.Name != "" {
		attrs["form_bean"] = act.Name
	}
	if act.Scope != "" {
		attrs["scope"] = act.Scope
	}
	if act.Input != "" {
		attrs["input"] = act.Input
	}
	if len(act.Forwards) > 0 {
		var fwds []string
		for name, path := range act.Forwards {
			fwds = append(fwds, fmt.Sprintf("%s=%s", name, path))
		}
		sort.Strings(fwds)
		attrs["forwards"] = strings.Join(fwds, ",")
	}
	return attrs
}

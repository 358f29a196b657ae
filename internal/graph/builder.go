package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vosbek/codeatlas/internal/complexity"
	"github.com/vosbek/codeatlas/internal/diag"
	"github.com/vosbek/codeatlas/internal/discover"
	"github.com/vosbek/codeatlas/internal/framework"
	"github.com/vosbek/codeatlas/internal/jparse"
	"github.com/vosbek/codeatlas/internal/rules"
)

// pendingEdge is a relationship proposed by qualified-name reference; it
// resolves to entity ids only once the whole batch is assembled.
type pendingEdge struct {
	SourceID  string
	TargetRef string // qualified or simple type reference
	Package   string // referring package, for same-package resolution
	Type      RelType
	Origin    string // file for the dangling diagnostic
}

// callEdge is a CALLS proposal by callee name.
type callEdge struct {
	SourceID string
	TypeQN   string
	Callee   string
}

// Builder accumulates one snapshot's entities. The merge is single
// threaded; per-file results are fed in after the parallel stage ends.
type Builder struct {
	entities   []Entity
	seen       map[string]int // identity key -> index of canonical entity
	byQN       map[string]string
	bySimple   map[string][]string // simple name -> canonical type ids
	methodByQN map[string]string   // typeQN + "." + method name -> method id
	pending    []pendingEdge
	calls      []callEdge
	rels       []Relationship
	diags      []diag.Diagnostic
	stats      Stats
}

func NewBuilder() *Builder {
	return &Builder{
		seen:       map[string]int{},
		byQN:       map[string]string{},
		bySimple:   map[string][]string{},
		methodByQN: map[string]string{},
		stats: Stats{
			ArtifactsByKind: map[string]int{},
			RulesByKind:     map[string]int{},
			ComplexityBands: map[string]int{},
		},
	}
}

func (b *Builder) AddDiagnostics(ds ...diag.Diagnostic) {
	b.diags = append(b.diags, ds...)
}

// AddModule registers a module entity plus dependency entities and
// DEPENDS_ON edges for its declared dependencies.
func (b *Builder) AddModule(mod *discover.Module) string {
	qn := mod.RelPath
	if qn == "" {
		qn = mod.Name
	}
	id := b.put(Entity{
		ID:            entityID(KindModule, qn),
		Kind:          KindModule,
		QualifiedName: qn,
		FilePath:      mod.RelPath,
		Attributes: map[string]any{
			"name":          mod.Name,
			"build_systems": strings.Join(mod.BuildSystems, ","),
			"depth":         mod.Depth,
		},
	}, "module|"+qn)

	for _, dep := range mod.Dependencies {
		coord := dep.GroupID + ":" + dep.ArtifactID
		depID := b.put(Entity{
			ID:            entityID(KindDependency, coord),
			Kind:          KindDependency,
			QualifiedName: coord,
			Attributes: map[string]any{
				"group_id":    dep.GroupID,
				"artifact_id": dep.ArtifactID,
				"version":     dep.Version,
				"source":      dep.Source,
			},
		}, "dependency|"+coord)
		b.rels = append(b.rels, Relationship{SourceID: id, TargetID: depID, Type: RelDependsOn})
	}
	return id
}

// AddFile merges one parsed file: its types, members, complexity scores
// and containment/inheritance/call edges. moduleID owns the types.
func (b *Builder) AddFile(moduleID, relPath string, tree *jparse.DeclTree) {
	b.stats.FilesTotal++
	if tree == nil || tree.Outcome == jparse.OutcomeFailure {
		b.stats.FilesFailed++
		return
	}
	for _, t := range tree.Types {
		typeID, canonical := b.addType(relPath, t)
		if !canonical {
			continue
		}
		if moduleID != "" {
			b.rels = append(b.rels, Relationship{SourceID: moduleID, TargetID: typeID, Type: RelContains})
		}
		if t.Extends != "" {
			b.pending = append(b.pending, pendingEdge{
				SourceID: typeID, TargetRef: t.Extends, Package: tree.Package,
				Type: RelExtends, Origin: relPath,
			})
		}
		for _, ref := range t.Implements {
			b.pending = append(b.pending, pendingEdge{
				SourceID: typeID, TargetRef: ref, Package: tree.Package,
				Type: RelImplements, Origin: relPath,
			})
		}
		for _, m := range t.Methods {
			b.addMethod(relPath, typeID, t, m)
		}
		for _, f := range t.Fields {
			b.addField(relPath, typeID, t, f)
		}
	}
}

func (b *Builder) addType(relPath string, t *jparse.Type) (string, bool) {
	key := "type|" + t.QualifiedName
	if i, dup := b.seen[key]; dup {
		// Duplicate declaration across files: keep both, first seen stays
		// canonical, the batch survives.
		id := entityID(KindType, t.QualifiedName+"|"+relPath+"|"+fmt.Sprint(t.StartLine))
		b.entities = append(b.entities, Entity{
			ID:            id,
			Kind:          KindType,
			QualifiedName: t.QualifiedName,
			FilePath:      relPath,
			StartLine:     t.StartLine,
			EndLine:       t.EndLine,
			Canonical:     false,
			Attributes:    typeAttrs(t),
		})
		b.diags = append(b.diags, diag.Warnf(diag.CategoryGraphEmit, relPath,
			"duplicate declaration of %s; canonical copy is %s",
			t.QualifiedName, b.entities[i].FilePath))
		return b.entities[i].ID, false
	}

	id := b.put(Entity{
		ID:            entityID(KindType, t.QualifiedName),
		Kind:          KindType,
		QualifiedName: t.QualifiedName,
		FilePath:      relPath,
		StartLine:     t.StartLine,
		EndLine:       t.EndLine,
		Attributes:    typeAttrs(t),
	}, key)
	b.byQN[t.QualifiedName] = id
	b.bySimple[t.Name] = append(b.bySimple[t.Name], id)
	b.stats.Types++
	return id, true
}

func typeAttrs(t *jparse.Type) map[string]any {
	attrs := map[string]any{"type_kind": string(t.Kind)}
	if len(t.Modifiers) > 0 {
		attrs["modifiers"] = strings.Join(t.Modifiers, " ")
	}
	if t.TypeParams != "" {
		attrs["type_params"] = t.TypeParams
	}
	return attrs
}

func (b *Builder) addMethod(relPath, typeID string, t *jparse.Type, m *jparse.Method) {
	sig := m.Signature()
	key := "method|" + t.QualifiedName + "#" + sig
	if _, dup := b.seen[key]; dup {
		b.diags = append(b.diags, diag.Warnf(diag.CategoryGraphEmit, relPath,
			"duplicate method %s in %s; first seen kept", sig, t.QualifiedName))
		return
	}
	score := complexity.Score(m.Body)
	id := b.put(Entity{
		ID:            entityID(KindMethod, t.QualifiedName+"#"+sig),
		Kind:          KindMethod,
		QualifiedName: t.QualifiedName + "#" + sig,
		FilePath:      relPath,
		StartLine:     m.StartLine,
		EndLine:       m.EndLine,
		Attributes: map[string]any{
			"name":            m.Name,
			"signature":       sig,
			"return_type":     m.ReturnType,
			"modifiers":       strings.Join(m.Modifiers, " "),
			"constructor":     m.Constructor,
			"complexity":      score,
			"complexity_band": string(complexity.BandFor(score)),
		},
	}, key)
	if _, ok := b.methodByQN[t.QualifiedName+"."+m.Name]; !ok {
		b.methodByQN[t.QualifiedName+"."+m.Name] = id
	}
	b.stats.Methods++
	b.stats.ComplexityBands[string(complexity.BandFor(score))]++
	b.rels = append(b.rels, Relationship{SourceID: typeID, TargetID: id, Type: RelContains})

	for _, callee := range jparse.CallSites(m.Body) {
		b.calls = append(b.calls, callEdge{SourceID: id, TypeQN: t.QualifiedName, Callee: callee})
	}
}

func (b *Builder) addField(relPath, typeID string, t *jparse.Type, f *jparse.Field) {
	key := "field|" + t.QualifiedName + "." + f.Name
	if _, dup := b.seen[key]; dup {
		return
	}
	id := b.put(Entity{
		ID:            entityID(KindField, t.QualifiedName+"."+f.Name),
		Kind:          KindField,
		QualifiedName: t.QualifiedName + "." + f.Name,
		FilePath:      relPath,
		StartLine:     f.Line,
		EndLine:       f.Line,
		Attributes: map[string]any{
			"name":       f.Name,
			"field_type": f.Type,
			"modifiers":  strings.Join(f.Modifiers, " "),
		},
	}, key)
	b.stats.Fields++
	b.rels = append(b.rels, Relationship{SourceID: typeID, TargetID: id, Type: RelContains})
}

// AddArtifact merges one framework artifact. Orphans carry no type
// reference; their identity derives from the configuration side.
func (b *Builder) AddArtifact(a framework.Artifact) {
	var qn, key string
	if a.TypeQN != "" {
		qn = a.TypeQN + "@" + string(a.Kind)
		key = "artifact|" + qn + "|" + a.ConfigPath
	} else {
		// Code-less orphans have no qualified name of their own; identity
		// is the config entry itself, fingerprinted over every attribute
		// so two entries from one file never fold into each other.
		qn = a.ConfigPath + "#" + a.Attributes["path"] + a.Attributes["bean_id"] +
			a.Attributes["bean_name"] + a.Attributes["idl_name"] + "@" + string(a.Kind)
		key = "artifact|" + a.ConfigPath + "|" + string(a.Kind) + "|" + attrFingerprint(a.Attributes)
	}
	if _, dup := b.seen[key]; dup {
		return
	}
	attrs := map[string]any{"artifact_kind": string(a.Kind), "state": string(a.State)}
	for k, v := range a.Attributes {
		attrs[k] = v
	}
	if a.ConfigPath != "" {
		attrs["config_path"] = a.ConfigPath
	}
	if a.MethodName != "" {
		attrs["entry_method"] = a.MethodName
	}
	id := b.put(Entity{
		ID:            entityID(KindArtifact, key),
		Kind:          KindArtifact,
		QualifiedName: qn,
		FilePath:      a.FilePath,
		StartLine:     a.Line,
		EndLine:       a.Line,
		Attributes:    attrs,
	}, key)
	b.stats.Artifacts++
	b.stats.ArtifactsByKind[string(a.Kind)]++
	if a.TypeQN != "" {
		if typeID, ok := b.byQN[a.TypeQN]; ok {
			b.rels = append(b.rels, Relationship{SourceID: typeID, TargetID: id, Type: RelContains})
		}
	}
}

// attrFingerprint flattens an attribute map deterministically.
func attrFingerprint(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(attrs[k])
		sb.WriteByte(';')
	}
	return sb.String()
}

// AddRule merges one business rule and links it to its origin method.
func (b *Builder) AddRule(r rules.Rule) {
	key := fmt.Sprintf("rule|%s.%s|%s|%d", r.TypeQN, r.MethodName, r.Kind, r.StartLine)
	if _, dup := b.seen[key]; dup {
		return
	}
	id := b.put(Entity{
		ID:            entityID(KindRule, key),
		Kind:          KindRule,
		QualifiedName: fmt.Sprintf("%s.%s:%s:%d", r.TypeQN, r.MethodName, r.Kind, r.StartLine),
		FilePath:      r.FilePath,
		StartLine:     r.StartLine,
		EndLine:       r.EndLine,
		Attributes: map[string]any{
			"rule_kind":      string(r.Kind),
			"description":    r.Description,
			"confidence":     r.Confidence,
			"low_confidence": r.LowConfidence,
			"signals":        strings.Join(r.Signals, ","),
		},
	}, key)
	b.stats.Rules++
	b.stats.RulesByKind[string(r.Kind)]++
	if methodID, ok := b.methodByQN[r.TypeQN+"."+r.MethodName]; ok {
		b.rels = append(b.rels, Relationship{SourceID: id, TargetID: methodID, Type: RelExtractedFrom})
	}
}

// put appends an entity as canonical and records its identity key.
func (b *Builder) put(e Entity, key string) string {
	if i, dup := b.seen[key]; dup {
		return b.entities[i].ID
	}
	e.Canonical = true
	b.seen[key] = len(b.entities)
	b.entities = append(b.entities, e)
	return e.ID
}

// Finish resolves pending references, drops dangling relationships with a
// diagnostic, orders the batch deterministically and computes stats.
func (b *Builder) Finish(snapshotID string) *Batch {
	for _, p := range b.pending {
		targetID, ok := b.resolveRef(p.TargetRef, p.Package)
		if !ok {
			b.diags = append(b.diags, diag.Infof(diag.CategoryGraphEmit, p.Origin,
				"%s reference %q unresolved; edge dropped", p.Type, p.TargetRef))
			continue
		}
		b.rels = append(b.rels, Relationship{SourceID: p.SourceID, TargetID: targetID, Type: p.Type})
	}
	for _, c := range b.calls {
		// Same-type resolution only; cross-type calls need receiver types
		// this front end does not track.
		if calleeID, ok := b.methodByQN[c.TypeQN+"."+c.Callee]; ok && calleeID != c.SourceID {
			b.rels = append(b.rels, Relationship{SourceID: c.SourceID, TargetID: calleeID, Type: RelCalls})
		}
	}

	valid := map[string]bool{}
	for _, e := range b.entities {
		valid[e.ID] = true
	}
	kept := b.rels[:0]
	seenRel := map[Relationship]bool{}
	for _, r := range b.rels {
		if !valid[r.SourceID] || !valid[r.TargetID] {
			b.diags = append(b.diags, diag.Warnf(diag.CategoryGraphEmit, "",
				"relationship %s with missing endpoint dropped", r.Type))
			continue
		}
		if seenRel[r] {
			continue
		}
		seenRel[r] = true
		kept = append(kept, r)
	}
	b.rels = kept

	sort.Slice(b.entities, func(i, j int) bool {
		a, c := b.entities[i], b.entities[j]
		if a.Kind != c.Kind {
			return a.Kind < c.Kind
		}
		if a.QualifiedName != c.QualifiedName {
			return a.QualifiedName < c.QualifiedName
		}
		return a.ID < c.ID
	})
	sort.Slice(b.rels, func(i, j int) bool {
		a, c := b.rels[i], b.rels[j]
		if a.Type != c.Type {
			return a.Type < c.Type
		}
		if a.SourceID != c.SourceID {
			return a.SourceID < c.SourceID
		}
		return a.TargetID < c.TargetID
	})

	b.stats.Relationships = len(b.rels)
	return &Batch{
		SnapshotID:    snapshotID,
		Entities:      b.entities,
		Relationships: b.rels,
		Diagnostics:   b.diags,
		Stats:         b.stats,
	}
}

// resolveRef maps a type reference to an entity id: exact qualified name,
// then same-package name, then a unique simple-name match.
func (b *Builder) resolveRef(ref, pkg string) (string, bool) {
	if id, ok := b.byQN[ref]; ok {
		return id, true
	}
	if pkg != "" {
		if id, ok := b.byQN[pkg+"."+ref]; ok {
			return id, true
		}
	}
	if !strings.Contains(ref, ".") {
		if ids := b.bySimple[ref]; len(ids) == 1 {
			return ids[0], true
		}
	}
	return "", false
}

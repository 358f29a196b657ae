// Package graph merges per-file analysis outputs into one deduplicated,
// referentially consistent batch of entity and relationship upserts.
package graph

import (
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/vosbek/codeatlas/internal/diag"
)

// EntityKind discriminates batch entity records.
type EntityKind string

const (
	KindModule     EntityKind = "module"
	KindDependency EntityKind = "dependency"
	KindType       EntityKind = "java_type"
	KindMethod     EntityKind = "method"
	KindField      EntityKind = "field"
	KindArtifact   EntityKind = "framework_artifact"
	KindRule       EntityKind = "business_rule"
)

// Entity is one upsert record. The shape {id, kind, qualified_name,
// file_path, line_range, attributes} is the stable contract downstream
// consumers rely on.
type Entity struct {
	ID            string         `json:"id"`
	Kind          EntityKind     `json:"kind"`
	QualifiedName string         `json:"qualified_name"`
	FilePath      string         `json:"file_path,omitempty"`
	StartLine     int            `json:"start_line,omitempty"`
	EndLine       int            `json:"end_line,omitempty"`
	Canonical     bool           `json:"canonical"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// RelType is a directed relationship flavor.
type RelType string

const (
	RelCalls         RelType = "CALLS"
	RelExtends       RelType = "EXTENDS"
	RelImplements    RelType = "IMPLEMENTS"
	RelContains      RelType = "CONTAINS"
	RelDependsOn     RelType = "DEPENDS_ON"
	RelExtractedFrom RelType = "EXTRACTED_FROM"
)

// Relationship connects two entities already present in the same batch.
type Relationship struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     RelType `json:"type"`
}

// Stats summarizes one batch for status reporting.
type Stats struct {
	FilesTotal      int            `json:"files_total"`
	FilesFailed     int            `json:"files_failed"`
	Types           int            `json:"types"`
	Methods         int            `json:"methods"`
	Fields          int            `json:"fields"`
	Artifacts       int            `json:"artifacts"`
	ArtifactsByKind map[string]int `json:"artifacts_by_kind,omitempty"`
	Rules           int            `json:"rules"`
	RulesByKind     map[string]int `json:"rules_by_kind,omitempty"`
	ComplexityBands map[string]int `json:"complexity_bands,omitempty"`
	Relationships   int            `json:"relationships"`
}

// Batch is the complete output of one snapshot's merge.
type Batch struct {
	SnapshotID    string            `json:"snapshot_id"`
	Entities      []Entity          `json:"entities"`
	Relationships []Relationship    `json:"relationships"`
	Diagnostics   []diag.Diagnostic `json:"diagnostics"`
	Stats         Stats             `json:"stats"`
}

// entityID derives a stable identifier from an entity's identity key, so
// re-analysis of identical input produces identical ids.
func entityID(kind EntityKind, key string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(string(kind)+"|"+key))
}

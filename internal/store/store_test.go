package store

import (
	"testing"

	"github.com/vosbek/codeatlas/internal/diag"
	"github.com/vosbek/codeatlas/internal/graph"
	"github.com/vosbek/codeatlas/internal/jparse"
)

func sampleBatch(t *testing.T) *graph.Batch {
	t.Helper()
	src := `package com.example.billing;

public class PayAction extends ActionBase {
    public String execute() {
        return "ok";
    }
}

class ActionBase {
}
`
	tree, _ := jparse.ParseFile("PayAction.java", []byte(src))
	b := graph.NewBuilder()
	b.AddFile("", "PayAction.java", tree)
	b.AddDiagnostics(diag.Warnf(diag.CategoryParse, "Other.java", "something odd"))
	return b.Finish("snap-test")
}

func TestSaveAndLoadBatch(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	batch := sampleBatch(t)
	if err := s.SaveBatch("billing", "rev-1", batch); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	snap, err := s.GetSnapshot("snap-test")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.Repository != "billing" || snap.Revision != "rev-1" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Stats.Types != 2 {
		t.Fatalf("stats = %+v", snap.Stats)
	}

	types, err := s.EntitiesByKind("snap-test", graph.KindType)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 2 {
		t.Fatalf("types = %+v", types)
	}

	pay, err := s.EntityByQN("snap-test", "com.example.billing.PayAction")
	if err != nil {
		t.Fatal(err)
	}
	if pay == nil || pay.Kind != graph.KindType || !pay.Canonical {
		t.Fatalf("entity = %+v", pay)
	}

	rels, err := s.RelationshipsFrom("snap-test", pay.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	// CONTAINS execute and EXTENDS ActionBase
	if len(rels) != 2 {
		t.Fatalf("rels = %+v", rels)
	}

	diags, err := s.DiagnosticsFor("snap-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 || diags[0].Severity != diag.SeverityWarning {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestSaveBatchRollsBackOnDuplicateSnapshot(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	batch := sampleBatch(t)
	if err := s.SaveBatch("billing", "rev-1", batch); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBatch("billing", "rev-1", batch); err == nil {
		t.Fatal("duplicate snapshot id accepted")
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("snapshots = %d", n)
	}
}

func TestEntityByQNMissing(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SaveBatch("billing", "rev-1", sampleBatch(t)); err != nil {
		t.Fatal(err)
	}
	e, err := s.EntityByQN("snap-test", "com.example.Nope")
	if err != nil || e != nil {
		t.Fatalf("e = %+v err = %v", e, err)
	}
}

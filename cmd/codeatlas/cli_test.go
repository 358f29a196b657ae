package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "codeatlas ") {
		t.Fatalf("out = %q", out)
	}
}

func TestAnalyzeCommandEndToEnd(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	src := `package com.example;

public class Greeter {
    public String greet(String name) {
        if (name == null) {
            return "hello";
        }
        return "hello " + name;
    }
}
`
	if err := os.WriteFile(filepath.Join(repo, "src", "Greeter.java"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(t.TempDir(), "atlas.db")

	out, err := runCmd(t, "analyze", repo, "--db", db)
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	if !strings.Contains(out, "state:     COMPLETED") {
		t.Fatalf("out = %q", out)
	}
	if !strings.Contains(out, "files:     1/1") {
		t.Fatalf("out = %q", out)
	}

	var snapshot string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "snapshot:") {
			snapshot = strings.TrimSpace(strings.TrimPrefix(line, "snapshot:"))
		}
	}
	if snapshot == "" {
		t.Fatalf("no snapshot in %q", out)
	}

	out, err = runCmd(t, "show", snapshot, "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "java_type") {
		t.Fatalf("out = %q", out)
	}
}

func TestAnalyzeCommandJSON(t *testing.T) {
	repo := t.TempDir()
	if err := os.WriteFile(filepath.Join(repo, "Empty.java"), []byte("package p;\n\npublic class Empty {\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(t.TempDir(), "atlas.db")
	out, err := runCmd(t, "analyze", repo, "--db", db, "--json")
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	var payload struct {
		Status struct {
			State      string `json:"state"`
			SnapshotID string `json:"snapshot_id"`
		} `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("bad json: %v\n%s", err, out)
	}
	if payload.Status.State != "COMPLETED" || payload.Status.SnapshotID == "" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestAnalyzeCommandBadRoot(t *testing.T) {
	db := filepath.Join(t.TempDir(), "atlas.db")
	if _, err := runCmd(t, "analyze", filepath.Join(t.TempDir(), "missing"), "--db", db); err == nil {
		t.Fatal("expected error")
	}
}

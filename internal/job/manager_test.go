package job

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vosbek/codeatlas/internal/config"
	"github.com/vosbek/codeatlas/internal/graph"
	"github.com/vosbek/codeatlas/internal/store"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T, cfg *config.Config) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := NewManager(cfg, st, log)
	if err != nil {
		t.Fatal(err)
	}
	return m, st
}

const payActionSrc = `package com.example.billing;

import org.apache.struts.action.Action;

public class PayAction extends Action {
    private static final double MAX_AMOUNT = 10000.0;

    public ActionForward execute(ActionMapping mapping, ActionForm form,
            HttpServletRequest request, HttpServletResponse response) throws Exception {
        double amount = getAmount(form);
        if (amount > MAX_AMOUNT) {
            throw new IllegalArgumentException("over limit");
        }
        return mapping.findForward("success");
    }

    private double getAmount(ActionForm form) {
        return 0.0;
    }
}
`

const strutsConfigSrc = `<?xml version="1.0" encoding="UTF-8"?>
<struts-config>
  <action-mappings>
    <action path="/pay" type="com.example.billing.PayAction">
      <forward name="success" path="/done.jsp"/>
    </action>
  </action-mappings>
</struts-config>
`

func seedRepo(t *testing.T, extraJava int) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "pom.xml", `<project><groupId>com.example</groupId><artifactId>billing</artifactId></project>`)
	writeFile(t, root, "src/main/java/com/example/billing/PayAction.java", payActionSrc)
	writeFile(t, root, "src/main/webapp/WEB-INF/struts-config.xml", strutsConfigSrc)
	for i := 0; i < extraJava; i++ {
		name := string(rune('A'+i)) + "Calc"
		writeFile(t, root, "src/main/java/com/example/billing/"+name+".java",
			"package com.example.billing;\n\npublic class "+name+" {\n    public int id() { return 1; }\n}\n")
	}
	return root
}

func TestJobCompletesAndPersists(t *testing.T) {
	root := seedRepo(t, 2)
	m, st := newTestManager(t, config.Default())

	id := m.Submit(root)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	status, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateCompleted {
		t.Fatalf("state = %s err = %s", status.State, status.Err)
	}
	if status.FilesTotal != 3 || status.FilesProcessed != 3 {
		t.Fatalf("files = %d/%d", status.FilesProcessed, status.FilesTotal)
	}
	if status.SnapshotID == "" {
		t.Fatal("no snapshot recorded")
	}

	trace, err := m.States(id)
	if err != nil {
		t.Fatal(err)
	}
	want := []State{StateQueued, StateDiscovering, StateParsing, StateEnriching, StateGraphEmitting, StateCompleted}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}

	snap, err := st.GetSnapshot(status.SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.Stats.FilesTotal != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	types, err := st.EntitiesByKind(status.SnapshotID, graph.KindType)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 3 {
		t.Fatalf("types = %d", len(types))
	}
	batch, err := m.Result(id)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Stats.Types != 3 || batch.Stats.ComplexityBands["low"] == 0 {
		t.Fatalf("stats = %+v", batch.Stats)
	}

	arts, err := st.EntitiesByKind(status.SnapshotID, graph.KindArtifact)
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 1 {
		t.Fatalf("artifacts = %+v", arts)
	}
	if arts[0].Attributes["state"] != "mapped" {
		t.Fatalf("artifact = %+v", arts[0])
	}
}

func TestJobFailsOnUnreadableRoot(t *testing.T) {
	m, _ := newTestManager(t, config.Default())
	id := m.Submit(filepath.Join(t.TempDir(), "nope"))
	status, err := m.Wait(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateFailed {
		t.Fatalf("state = %s", status.State)
	}
	if status.Err == "" || status.SnapshotID != "" {
		t.Fatalf("status = %+v", status)
	}
	if _, err := m.Result(id); err == nil {
		t.Fatal("expected no batch")
	}
}

func TestJobCancelMidParseEmitsPartial(t *testing.T) {
	root := seedRepo(t, 9) // 10 java files in total
	cfg := config.Default()
	cfg.FileWorkers = 1
	m, st := newTestManager(t, cfg)

	idCh := make(chan string, 1)
	m.scheduleHook = func(scheduled int) {
		if scheduled == 3 {
			if err := m.Cancel(<-idCh); err != nil {
				t.Errorf("cancel: %v", err)
			}
		}
	}
	id := m.Submit(root)
	idCh <- id
	status, err := m.Wait(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	// Partial results are persisted, but a cancelled job must not end up
	// looking like a full run.
	if status.State != StateCancelled {
		t.Fatalf("state = %s err = %s", status.State, status.Err)
	}
	if status.FilesProcessed != 3 || status.FilesTotal != 10 {
		t.Fatalf("files = %d/%d", status.FilesProcessed, status.FilesTotal)
	}

	trace, err := m.States(id)
	if err != nil {
		t.Fatal(err)
	}
	sawPartial := false
	for _, s := range trace {
		if s == StateParsingPartial {
			sawPartial = true
		}
	}
	if !sawPartial {
		t.Fatalf("trace = %v", trace)
	}

	// The emitted graph holds exactly the completed files.
	snap, err := st.GetSnapshot(status.SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.Stats.FilesTotal != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	diags, err := st.DiagnosticsFor(status.SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range diags {
		if strings.Contains(d.Message, "canceled after 3 of 10 files") {
			found = true
		}
	}
	if !found {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestJobPartialParseFailuresStillComplete(t *testing.T) {
	root := seedRepo(t, 2) // PayAction + 2 well-formed classes
	writeFile(t, root, "src/main/java/com/example/billing/Broken.java",
		"this is not a java source at all {{{\n%%%\n")
	m, st := newTestManager(t, config.Default())

	id := m.Submit(root)
	status, err := m.Wait(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateCompleted {
		t.Fatalf("state = %s err = %s", status.State, status.Err)
	}
	if status.FilesProcessed != 4 || status.FilesTotal != 4 {
		t.Fatalf("files = %d/%d", status.FilesProcessed, status.FilesTotal)
	}

	trace, err := m.States(id)
	if err != nil {
		t.Fatal(err)
	}
	sawPartial := false
	for _, s := range trace {
		if s == StateParsingPartial {
			sawPartial = true
		}
	}
	if !sawPartial {
		t.Fatalf("trace = %v", trace)
	}

	// The healthy files' entities are all there; the broken file is only
	// a counter and a diagnostic.
	snap, err := st.GetSnapshot(status.SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.Stats.FilesTotal != 4 || snap.Stats.FilesFailed != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	types, err := st.EntitiesByKind(status.SnapshotID, graph.KindType)
	if err != nil {
		t.Fatal(err)
	}
	if len(types) != 3 {
		t.Fatalf("types = %d", len(types))
	}
	diags, err := st.DiagnosticsFor(status.SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range diags {
		if strings.Contains(d.FilePath, "Broken.java") {
			found = true
		}
	}
	if !found {
		t.Fatalf("diags = %+v", diags)
	}
}

func TestJobRepoTimeoutRetainsPartialBatch(t *testing.T) {
	root := seedRepo(t, 9)
	cfg := config.Default()
	cfg.FileWorkers = 1
	cfg.RepoTimeout = 150 * time.Millisecond
	m, st := newTestManager(t, cfg)

	m.scheduleHook = func(scheduled int) {
		if scheduled == 2 {
			time.Sleep(400 * time.Millisecond)
		}
	}
	id := m.Submit(root)
	status, err := m.Wait(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateFailed {
		t.Fatalf("state = %s", status.State)
	}
	if !strings.Contains(status.Err, "repository timeout") {
		t.Fatalf("err = %s", status.Err)
	}
	if status.SnapshotID == "" {
		t.Fatal("partial batch not retained")
	}
	snap, err := st.GetSnapshot(status.SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.Stats.FilesTotal != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestJobCancelWhileQueued(t *testing.T) {
	cfg := config.Default()
	cfg.RepoWorkers = 1
	m, _ := newTestManager(t, cfg)

	// Occupy the only repository slot so the job stays queued.
	if err := m.repoSem.Acquire(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	defer m.repoSem.Release(1)

	id := m.Submit(seedRepo(t, 0))
	if err := m.Cancel(id); err != nil {
		t.Fatal(err)
	}
	status, err := m.Wait(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateFailed {
		t.Fatalf("state = %s", status.State)
	}
}

func TestJobUnknownID(t *testing.T) {
	m, _ := newTestManager(t, config.Default())
	if _, err := m.Status("nope"); err == nil {
		t.Fatal("expected error")
	}
	if err := m.Cancel("nope"); err == nil {
		t.Fatal("expected error")
	}
}

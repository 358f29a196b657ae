package discover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vosbek/codeatlas/internal/config"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

const rootPOM = `<?xml version="1.0"?>
<project xmlns="http://maven.apache.org/POM/4.0.0">
  <groupId>com.example</groupId>
  <artifactId>billing-parent</artifactId>
  <packaging>pom</packaging>
  <modules>
    <module>billing-core</module>
    <module>billing-web</module>
  </modules>
  <dependencies>
    <dependency>
      <groupId>org.apache.struts</groupId>
      <artifactId>struts-core</artifactId>
      <version>1.3.10</version>
    </dependency>
  </dependencies>
</project>
`

const corePOM = `<project>
  <artifactId>billing-core</artifactId>
  <dependencies>
    <dependency>
      <groupId>commons-lang</groupId>
      <artifactId>commons-lang</artifactId>
      <version>2.6</version>
      <scope>compile</scope>
    </dependency>
  </dependencies>
</project>
`

func TestDiscoverMavenModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pom.xml", rootPOM)
	writeFile(t, dir, "billing-core/pom.xml", corePOM)
	writeFile(t, dir, "billing-web/pom.xml", `<project><artifactId>billing-web</artifactId></project>`)

	repo, err := Discover(context.Background(), dir, config.Default())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(repo.Modules) != 3 {
		t.Fatalf("modules = %d, want 3", len(repo.Modules))
	}
	root := repo.Modules[0]
	if root.RelPath != "" || root.Depth != 0 {
		t.Fatalf("root module = %+v", root)
	}
	if len(root.Dependencies) == 0 || root.Dependencies[0].ArtifactID != "struts-core" {
		t.Fatalf("root deps = %+v", root.Dependencies)
	}
	core := repo.Modules[1]
	if core.RelPath != "billing-core" || core.Depth != 1 {
		t.Fatalf("core module = %+v", core)
	}
	if len(core.Dependencies) != 1 || core.Dependencies[0].Scope != "compile" {
		t.Fatalf("core deps = %+v", core.Dependencies)
	}
}

func TestDiscoverDepthLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pom.xml", `<project><modules><module>a</module></modules></project>`)
	writeFile(t, dir, "a/pom.xml", `<project><modules><module>b</module></modules></project>`)
	writeFile(t, dir, "a/b/pom.xml", `<project><modules><module>c</module></modules></project>`)
	writeFile(t, dir, "a/b/c/pom.xml", `<project/>`)

	cfg := config.Default()
	cfg.MaxDepth = 2

	repo, err := Discover(context.Background(), dir, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.Modules) != 3 {
		t.Fatalf("modules = %d, want 3 (depth limit)", len(repo.Modules))
	}
	found := false
	for _, d := range repo.Diagnostics {
		if d.FilePath == "a/b/c" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no depth diagnostic: %v", repo.Diagnostics)
	}
}

func TestDiscoverCycleTruncated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pom.xml", `<project><modules><module>a</module></modules></project>`)
	// a points back at the repository root
	writeFile(t, dir, "a/pom.xml", `<project><modules><module>..</module></modules></project>`)

	repo, err := Discover(context.Background(), dir, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(repo.Modules))
	}
	found := false
	for _, d := range repo.Diagnostics {
		if d.Severity == "warning" && d.Category == "discovery" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no cycle warning: %v", repo.Diagnostics)
	}
}

func TestDiscoverBadRootDescriptor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pom.xml", `<project><unclosed>`)

	_, err := Discover(context.Background(), dir, config.Default())
	var derr *DiscoveryError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want DiscoveryError", err)
	}
}

func TestDiscoverBadChildDescriptorIsDiagnostic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pom.xml", `<project><modules><module>a</module></modules></project>`)
	writeFile(t, dir, "a/pom.xml", `<project><unclosed>`)

	repo, err := Discover(context.Background(), dir, config.Default())
	if err != nil {
		t.Fatalf("child descriptor failure escalated: %v", err)
	}
	if len(repo.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(repo.Modules))
	}
	found := false
	for _, d := range repo.Diagnostics {
		if d.FilePath == "a" && d.Severity == "warning" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no child diagnostic: %v", repo.Diagnostics)
	}
}

func TestDiscoverImplicitModule(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/Main.java", "package com.acme.app;\nclass Main {}")

	repo, err := Discover(context.Background(), dir, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.Modules) != 1 || len(repo.Modules[0].BuildSystems) != 0 {
		t.Fatalf("modules = %+v", repo.Modules)
	}
	if len(repo.Diagnostics) == 0 {
		t.Fatal("no implicit-module warning")
	}
}

func TestDiscoverGradleAndInternalImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "build.gradle",
		"dependencies {\n  implementation 'org.slf4j:slf4j-api:1.7.36'\n  testImplementation(\"junit:junit:4.13.2\")\n}\n")
	writeFile(t, dir, "settings.gradle", "include ':app', ':shared'\n")
	writeFile(t, dir, "app/build.gradle", "")
	writeFile(t, dir, "shared/build.gradle", "")
	writeFile(t, dir, "src/A.java", "import com.company.billing.Rates;\nclass A {}")
	writeFile(t, dir, "lib/commons-net-3.3.jar", "zip")

	cfg := config.Default()
	cfg.InternalPrefixes = []string{"com.company"}

	repo, err := Discover(context.Background(), dir, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.Modules) != 3 {
		t.Fatalf("modules = %d, want 3", len(repo.Modules))
	}

	bySource := map[string][]Dependency{}
	for _, d := range repo.Modules[0].Dependencies {
		bySource[d.Source] = append(bySource[d.Source], d)
	}
	if len(bySource["gradle"]) != 2 {
		t.Fatalf("gradle deps = %+v", bySource["gradle"])
	}
	if len(bySource["jar"]) != 1 || bySource["jar"][0].ArtifactID != "commons-net" || bySource["jar"][0].Version != "3.3" {
		t.Fatalf("jar deps = %+v", bySource["jar"])
	}
	if len(bySource["internal"]) != 1 || bySource["internal"][0].GroupID != "com.company.billing" {
		t.Fatalf("internal deps = %+v", bySource["internal"])
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pom.xml", `<project/>`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, dir, config.Default())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// Package discover resolves a repository root into an ordered list of
// build modules with their declared dependencies.
package discover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vosbek/codeatlas/internal/config"
	"github.com/vosbek/codeatlas/internal/diag"
)

// Dependency is one declared dependency of a module.
type Dependency struct {
	GroupID    string `json:"group_id"`
	ArtifactID string `json:"artifact_id"`
	Version    string `json:"version,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Source     string `json:"source"` // maven, gradle, ivy, jar, internal
}

// Module is one buildable unit inside a repository.
type Module struct {
	Name         string
	Path         string // absolute
	RelPath      string // slash-separated, "" for the root module
	BuildSystems []string
	Depth        int
	Dependencies []Dependency
}

// Repository is the discovery result for one root.
type Repository struct {
	Root        string
	Modules     []*Module
	Diagnostics []diag.Diagnostic
}

// DiscoveryError marks a repository-level failure: the root itself could
// not be read or its descriptor could not be parsed. Everything below the
// root degrades to diagnostics instead.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

type moduleRef struct {
	name  string
	path  string
	depth int
}

// Discover walks the module graph starting at root. Traversal is an
// iterative worklist over a visited set keyed by module identity; cycles
// and over-depth branches truncate with a warning, never recurse.
func Discover(ctx context.Context, root string, cfg *config.Config) (*Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	} else if !info.IsDir() {
		return nil, &DiscoveryError{Root: root, Err: fmt.Errorf("not a directory")}
	}

	repo := &Repository{Root: abs}

	rootSystems := detectBuildSystems(abs)
	if len(rootSystems) == 0 {
		// Plain source tree: analyze it as one implicit module.
		repo.Diagnostics = append(repo.Diagnostics, diag.Warnf(diag.CategoryDiscovery, "",
			"no build descriptor at root; treating tree as a single module"))
	} else if err := checkRootDescriptor(abs, rootSystems); err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}

	visited := map[string]bool{}
	queue := []moduleRef{{name: filepath.Base(abs), path: abs, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return repo, err
		}
		ref := queue[0]
		queue = queue[1:]

		rel, _ := filepath.Rel(abs, ref.path)
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		if visited[rel] {
			repo.Diagnostics = append(repo.Diagnostics, diag.Warnf(diag.CategoryDiscovery, rel,
				"module cycle truncated at %s", ref.name))
			continue
		}
		visited[rel] = true

		if ref.depth > maxDepth {
			repo.Diagnostics = append(repo.Diagnostics, diag.Infof(diag.CategoryDiscovery, rel,
				"module %s beyond depth %d skipped", ref.name, maxDepth))
			continue
		}
		if info, err := os.Stat(ref.path); err != nil || !info.IsDir() {
			repo.Diagnostics = append(repo.Diagnostics, diag.Warnf(diag.CategoryDiscovery, rel,
				"declared module directory missing: %s", ref.name))
			continue
		}

		mod := &Module{
			Name:         ref.name,
			Path:         ref.path,
			RelPath:      rel,
			BuildSystems: detectBuildSystems(ref.path),
			Depth:        ref.depth,
		}
		children := analyzeModule(mod, cfg, &repo.Diagnostics)
		repo.Modules = append(repo.Modules, mod)

		sort.Slice(children, func(i, j int) bool { return children[i].name < children[j].name })
		for _, c := range children {
			c.depth = ref.depth + 1
			queue = append(queue, c)
		}
	}
	return repo, nil
}

// detectBuildSystems reports which build descriptors exist at dir.
func detectBuildSystems(dir string) []string {
	var systems []string
	if fileExists(filepath.Join(dir, "pom.xml")) {
		systems = append(systems, "maven")
	}
	if fileExists(filepath.Join(dir, "build.gradle")) ||
		fileExists(filepath.Join(dir, "build.gradle.kts")) ||
		fileExists(filepath.Join(dir, "settings.gradle")) {
		systems = append(systems, "gradle")
	}
	if fileExists(filepath.Join(dir, "build.xml")) {
		systems = append(systems, "ant")
	}
	return systems
}

// checkRootDescriptor parses the root build descriptor strictly; this is
// the one place a parse failure is fatal.
func checkRootDescriptor(dir string, systems []string) error {
	for _, s := range systems {
		switch s {
		case "maven":
			if _, err := parsePOM(filepath.Join(dir, "pom.xml")); err != nil {
				return fmt.Errorf("root pom.xml: %w", err)
			}
		case "ant":
			if err := checkAntWellFormed(filepath.Join(dir, "build.xml")); err != nil {
				return fmt.Errorf("root build.xml: %w", err)
			}
		}
	}
	return nil
}

// analyzeModule fills a module's dependency list and returns child module
// references. Descriptor failures below the root are diagnostics.
func analyzeModule(mod *Module, cfg *config.Config, diags *[]diag.Diagnostic) []moduleRef {
	var children []moduleRef
	for _, system := range mod.BuildSystems {
		switch system {
		case "maven":
			deps, mods, err := mavenModule(mod.Path)
			if err != nil {
				*diags = append(*diags, diag.Warnf(diag.CategoryDiscovery, mod.RelPath,
					"pom.xml unparseable, maven dependencies skipped: %v", err))
				continue
			}
			mod.Dependencies = append(mod.Dependencies, deps...)
			for _, m := range mods {
				children = append(children, moduleRef{name: m, path: filepath.Join(mod.Path, m)})
			}
		case "gradle":
			deps, mods := gradleModule(mod.Path, mod.RelPath, diags)
			mod.Dependencies = append(mod.Dependencies, deps...)
			for _, m := range mods {
				children = append(children, moduleRef{
					name: filepath.Base(m),
					path: filepath.Join(mod.Path, filepath.FromSlash(m)),
				})
			}
		case "ant":
			mod.Dependencies = append(mod.Dependencies, antModule(mod.Path, mod.RelPath, diags)...)
		}
	}
	mod.Dependencies = append(mod.Dependencies, jarDependencies(mod.Path)...)
	mod.Dependencies = append(mod.Dependencies, internalDependencies(mod.Path, cfg.InternalPrefixes)...)
	return children
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

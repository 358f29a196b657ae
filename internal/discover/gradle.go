package discover

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vosbek/codeatlas/internal/diag"
)

var (
	gradleDepRe = regexp.MustCompile(
		`\b(?:implementation|api|compile|compileOnly|runtimeOnly|testImplementation|testCompile)\s*\(?\s*['"]([^:'"]+):([^:'"]+):([^'"]+)['"]`)
	gradleIncludeRe = regexp.MustCompile(`(?m)^\s*include\b(.+)$`)
	quotedRe        = regexp.MustCompile(`['"]:?([\w./:-]+)['"]`)
)

// gradleModule scrapes build.gradle(.kts) for coordinate-style dependencies
// and settings.gradle for included subprojects. Groovy is not evaluated;
// dynamic dependency blocks are invisible here.
func gradleModule(dir, rel string, diags *[]diag.Diagnostic) ([]Dependency, []string) {
	var deps []Dependency
	for _, name := range []string{"build.gradle", "build.gradle.kts"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		for _, m := range gradleDepRe.FindAllStringSubmatch(string(data), -1) {
			deps = append(deps, Dependency{
				GroupID:    m[1],
				ArtifactID: m[2],
				Version:    m[3],
				Source:     "gradle",
			})
		}
	}

	var children []string
	for _, name := range []string{"settings.gradle", "settings.gradle.kts"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		for _, line := range gradleIncludeRe.FindAllStringSubmatch(string(data), -1) {
			for _, q := range quotedRe.FindAllStringSubmatch(line[1], -1) {
				child := strings.ReplaceAll(q[1], ":", "/")
				if child == "" || strings.Contains(child, "..") {
					*diags = append(*diags, diag.Warnf(diag.CategoryDiscovery, rel,
						"suspicious gradle include %q ignored", q[1]))
					continue
				}
				children = append(children, child)
			}
		}
	}
	return deps, children
}

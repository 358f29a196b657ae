package discover

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	libDirNames   = []string{"lib", "libs", "library", "libraries", "ext", "external"}
	jarVersionRe  = regexp.MustCompile(`-(\d+(?:\.\d+)*(?:-\w+)?)$`)
	javaImportRe  = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+)\s*;`)
	maxImportScan = 100
)

// jarDependencies lists bundled jars under the module's library directories.
// Version suffixes in file names are split off when present.
func jarDependencies(dir string) []Dependency {
	var deps []Dependency
	for _, libName := range libDirNames {
		entries, err := os.ReadDir(filepath.Join(dir, libName))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".jar") {
				continue
			}
			stem := strings.TrimSuffix(e.Name(), ".jar")
			artifact, version := stem, ""
			if m := jarVersionRe.FindStringSubmatchIndex(stem); m != nil {
				artifact = stem[:m[0]]
				version = stem[m[2]:m[3]]
			}
			deps = append(deps, Dependency{
				GroupID:    "unknown",
				ArtifactID: artifact,
				Version:    version,
				Source:     "jar",
			})
		}
	}
	return deps
}

// internalDependencies samples the module's Java files for imports under
// configured internal package prefixes. Each distinct three-segment package
// root becomes one internal dependency.
func internalDependencies(dir string, prefixes []string) []Dependency {
	if len(prefixes) == 0 {
		return nil
	}
	roots := map[string]bool{}
	scanned := 0
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fs.SkipDir
		}
		if d.IsDir() {
			if IGNORE_PATTERNS[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".java") || scanned >= maxImportScan {
			return nil
		}
		scanned++
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for _, m := range javaImportRe.FindAllStringSubmatch(string(data), -1) {
			imp := m[1]
			for _, prefix := range prefixes {
				if !strings.HasPrefix(imp, prefix) {
					continue
				}
				parts := strings.Split(imp, ".")
				if len(parts) >= 3 {
					roots[strings.Join(parts[:3], ".")] = true
				}
			}
		}
		return nil
	})

	var names []string
	for r := range roots {
		names = append(names, r)
	}
	sort.Strings(names)

	var deps []Dependency
	for _, name := range names {
		deps = append(deps, Dependency{
			GroupID:    name,
			ArtifactID: "internal",
			Source:     "internal",
		})
	}
	return deps
}

// IGNORE_PATTERNS are directory names skipped while sampling imports.
var IGNORE_PATTERNS = map[string]bool{
	".git": true, ".gradle": true, ".idea": true, ".svn": true,
	"bin": true, "build": true, "classes": true, "dist": true,
	"node_modules": true, "out": true, "target": true, "vendor": true,
}

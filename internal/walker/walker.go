// Package walker yields source file descriptors for one module as a lazy,
// finite sequence. One Walker serves exactly one pass.
package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vosbek/codeatlas/internal/diag"
)

// IGNORE_PATTERNS are directory names skipped during traversal.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".eclipse": true, ".git": true, ".gradle": true,
	".hg": true, ".idea": true, ".maven": true, ".settings": true,
	".svn": true, ".tmp": true, ".vs": true, ".vscode": true,
	"bin": true, "build": true, "classes": true, "dist": true,
	"node_modules": true, "obj": true, "out": true, "target": true,
	"temp": true, "tmp": true, "vendor": true,
}

// IGNORE_SUFFIXES are file suffixes never yielded.
var IGNORE_SUFFIXES = map[string]bool{
	".tmp": true, "~": true, ".class": true, ".jar": true,
	".war": true, ".ear": true, ".o": true, ".so": true, ".dll": true,
}

// Kind is the detected dialect of a yielded file.
type Kind string

const (
	KindJava       Kind = "java"
	KindIDL        Kind = "idl"
	KindXML        Kind = "xml"
	KindProperties Kind = "properties"
	KindBuild      Kind = "build" // pom.xml, build.gradle, build.xml, ivy.xml
)

// SourceFile describes one file retained by the walk.
type SourceFile struct {
	Path    string // absolute
	RelPath string // slash-separated, relative to the walk root
	Size    int64
	ModTime time.Time
	Kind    Kind
}

var buildNames = map[string]bool{
	"pom.xml": true, "build.gradle": true, "settings.gradle": true,
	"build.xml": true, "ivy.xml": true,
}

// classify returns the Kind for a file name, or "" when unsupported.
func classify(name string) Kind {
	if buildNames[strings.ToLower(name)] {
		return KindBuild
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".java":
		return KindJava
	case ".idl":
		return KindIDL
	case ".xml":
		return KindXML
	case ".properties":
		return KindProperties
	}
	return ""
}

// Walker is a pull iterator over one module tree. Not safe for concurrent
// use; create one per pass.
type Walker struct {
	root    string
	maxSize int64
	dirs    []string // pending directories, LIFO
	files   []SourceFile
	diags   []diag.Diagnostic
	done    bool
}

// New prepares a walk rooted at root. Files larger than maxSize are
// skipped with a diagnostic; maxSize <= 0 disables the cutoff.
func New(root string, maxSize int64) (*Walker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("walk root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("walk root %s is not a directory", abs)
	}
	return &Walker{root: abs, maxSize: maxSize, dirs: []string{abs}}, nil
}

// Next yields the next retained file. The second result is false once the
// tree is exhausted; the sequence does not restart.
func (w *Walker) Next() (SourceFile, bool) {
	for {
		if len(w.files) > 0 {
			f := w.files[0]
			w.files = w.files[1:]
			return f, true
		}
		if len(w.dirs) == 0 {
			w.done = true
			return SourceFile{}, false
		}
		dir := w.dirs[len(w.dirs)-1]
		w.dirs = w.dirs[:len(w.dirs)-1]
		w.readDir(dir)
	}
}

// Done reports whether the sequence has been exhausted.
func (w *Walker) Done() bool { return w.done }

// Diagnostics returns skip/read diagnostics accumulated so far.
func (w *Walker) Diagnostics() []diag.Diagnostic { return w.diags }

func (w *Walker) readDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		rel, _ := filepath.Rel(w.root, dir)
		w.diags = append(w.diags, diag.Warnf(diag.CategoryWalk, filepath.ToSlash(rel),
			"unreadable directory skipped: %v", err))
		return
	}
	// ReadDir sorts by name; push subdirectories in reverse so the LIFO
	// pops them in lexical order.
	var subdirs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			if !IGNORE_PATTERNS[name] {
				subdirs = append(subdirs, filepath.Join(dir, name))
			}
			continue
		}
		if hasIgnoredSuffix(name) {
			continue
		}
		kind := classify(name)
		if kind == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rel, _ := filepath.Rel(w.root, filepath.Join(dir, name))
		relSlash := filepath.ToSlash(rel)
		if w.maxSize > 0 && info.Size() > w.maxSize {
			w.diags = append(w.diags, diag.Infof(diag.CategoryWalk, relSlash,
				"file skipped: %d bytes exceeds limit %d", info.Size(), w.maxSize))
			continue
		}
		w.files = append(w.files, SourceFile{
			Path:    filepath.Join(dir, name),
			RelPath: relSlash,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Kind:    kind,
		})
	}
	for i := len(subdirs) - 1; i >= 0; i-- {
		w.dirs = append(w.dirs, subdirs[i])
	}
}

func hasIgnoredSuffix(name string) bool {
	for suffix := range IGNORE_SUFFIXES {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Collect drains a walker. Convenience for discovery and tests.
func Collect(w *Walker) ([]SourceFile, []diag.Diagnostic) {
	var files []SourceFile
	for {
		f, ok := w.Next()
		if !ok {
			break
		}
		files = append(files, f)
	}
	return files, w.Diagnostics()
}

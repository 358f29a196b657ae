package discover

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"

	"github.com/vosbek/codeatlas/internal/diag"
)

// antModule extracts Ivy-style <dependency org="" name="" rev=""/> entries
// from build.xml and ivy.xml. A token walk finds them at any depth.
func antModule(dir, rel string, diags *[]diag.Diagnostic) []Dependency {
	var deps []Dependency
	for _, name := range []string{"build.xml", "ivy.xml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		found, err := scanIvyDeps(path)
		if err != nil {
			*diags = append(*diags, diag.Warnf(diag.CategoryDiscovery, rel,
				"%s unparseable, ivy dependencies skipped: %v", name, err))
			continue
		}
		deps = append(deps, found...)
	}
	return deps
}

func scanIvyDeps(path string) ([]Dependency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var deps []Dependency
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return deps, nil
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "dependency" {
			continue
		}
		var org, artifact, rev string
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "org":
				org = a.Value
			case "name":
				artifact = a.Value
			case "rev":
				rev = a.Value
			}
		}
		if artifact == "" {
			continue
		}
		deps = append(deps, Dependency{
			GroupID:    org,
			ArtifactID: artifact,
			Version:    rev,
			Source:     "ivy",
		})
	}
}

// checkAntWellFormed verifies build.xml is parseable XML without keeping
// any of it.
func checkAntWellFormed(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := xml.NewDecoder(f)
	for {
		if _, err := dec.Token(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

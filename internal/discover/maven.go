package discover

import (
	"encoding/xml"
	"os"
	"path/filepath"
)

// pomProject is the subset of a Maven POM this pipeline cares about.
// encoding/xml matches local names, so the POM namespace is irrelevant.
type pomProject struct {
	XMLName      xml.Name `xml:"project"`
	GroupID      string   `xml:"groupId"`
	ArtifactID   string   `xml:"artifactId"`
	Packaging    string   `xml:"packaging"`
	Modules      []string `xml:"modules>module"`
	Dependencies []pomDep `xml:"dependencies>dependency"`
}

type pomDep struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
}

func parsePOM(path string) (*pomProject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pom pomProject
	if err := xml.Unmarshal(data, &pom); err != nil {
		return nil, err
	}
	return &pom, nil
}

// mavenModule reads dir/pom.xml and returns its declared dependencies and
// child module names.
func mavenModule(dir string) ([]Dependency, []string, error) {
	pom, err := parsePOM(filepath.Join(dir, "pom.xml"))
	if err != nil {
		return nil, nil, err
	}
	var deps []Dependency
	for _, d := range pom.Dependencies {
		if d.GroupID == "" || d.ArtifactID == "" {
			continue
		}
		deps = append(deps, Dependency{
			GroupID:    d.GroupID,
			ArtifactID: d.ArtifactID,
			Version:    d.Version,
			Scope:      d.Scope,
			Source:     "maven",
		})
	}
	return deps, pom.Modules, nil
}

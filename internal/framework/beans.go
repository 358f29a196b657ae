package framework

import (
	"encoding/xml"
	"strings"

	"github.com/vosbek/codeatlas/internal/diag"
)

// BeanDef is one container-managed bean declaration from a DI config file.
type BeanDef struct {
	ID         string
	Class      string
	ConfigPath string
}

type beansXML struct {
	XMLName xml.Name  `xml:"beans"`
	Beans   []beanXML `xml:"bean"`
}

type beanXML struct {
	ID    string `xml:"id,attr"`
	Name  string `xml:"name,attr"`
	Class string `xml:"class,attr"`
}

// IsBeanConfig sniffs Spring-style bean definition files.
func IsBeanConfig(data []byte) bool {
	s := string(data)
	return strings.Contains(s, "<beans") && strings.Contains(s, "<bean ")
}

// ParseBeanConfig extracts bean id/class pairs. Failures degrade to a
// warning diagnostic.
func ParseBeanConfig(relPath string, data []byte) ([]BeanDef, []diag.Diagnostic) {
	var cfg beansXML
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, []diag.Diagnostic{diag.Warnf(diag.CategoryFramework, relPath,
			"bean config unparseable: %v", err)}
	}
	var beans []BeanDef
	for _, b := range cfg.Beans {
		if b.Class == "" {
			continue
		}
		id := b.ID
		if id == "" {
			id = b.Name
		}
		beans = append(beans, BeanDef{ID: id, Class: b.Class, ConfigPath: relPath})
	}
	return beans, nil
}

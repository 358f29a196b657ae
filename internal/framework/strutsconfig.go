package framework

import (
	"encoding/xml"
	"strings"

	"github.com/vosbek/codeatlas/internal/diag"
)

// StrutsAction is one <action> mapping from a struts-config file.
type StrutsAction struct {
	Path       string
	Type       string // action class, usually fully qualified
	Name       string // form bean reference
	Scope      string
	Input      string
	Forwards   map[string]string
	ConfigPath string
}

// FormBean is one <form-bean> entry.
type FormBean struct {
	Name       string
	Type       string
	ConfigPath string
}

type strutsConfigXML struct {
	XMLName   xml.Name       `xml:"struts-config"`
	FormBeans []formBeanXML  `xml:"form-beans>form-bean"`
	Actions   []strutsActXML `xml:"action-mappings>action"`
	Forwards  []strutsFwdXML `xml:"global-forwards>forward"`
}

type formBeanXML struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

type strutsActXML struct {
	Path     string         `xml:"path,attr"`
	Type     string         `xml:"type,attr"`
	Name     string         `xml:"name,attr"`
	Scope    string         `xml:"scope,attr"`
	Input    string         `xml:"input,attr"`
	Forwards []strutsFwdXML `xml:"forward"`
}

type strutsFwdXML struct {
	Name string `xml:"name,attr"`
	Path string `xml:"path,attr"`
}

// IsStrutsConfig is a cheap sniff for walker-yielded XML files.
func IsStrutsConfig(relPath string, data []byte) bool {
	return strings.Contains(relPath, "struts") ||
		strings.Contains(string(data), "<struts-config")
}

// ParseStrutsConfig extracts action mappings and form beans. A broken
// config yields a warning diagnostic and whatever parsed, never an error.
func ParseStrutsConfig(relPath string, data []byte) ([]StrutsAction, []FormBean, []diag.Diagnostic) {
	var cfg strutsConfigXML
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, []diag.Diagnostic{diag.Warnf(diag.CategoryFramework, relPath,
			"struts config unparseable: %v", err)}
	}

	var actions []StrutsAction
	for _, a := range cfg.Actions {
		if a.Path == "" {
			continue
		}
		act := StrutsAction{
			Path:       a.Path,
			Type:       a.Type,
			Name:       a.Name,
			Scope:      a.Scope,
			Input:      a.Input,
			ConfigPath: relPath,
		}
		if len(a.Forwards) > 0 {
			act.Forwards = map[string]string{}
			for _, f := range a.Forwards {
				if f.Name != "" && f.Path != "" {
					act.Forwards[f.Name] = f.Path
				}
			}
		}
		actions = append(actions, act)
	}

	var beans []FormBean
	for _, b := range cfg.FormBeans {
		if b.Name == "" || b.Type == "" {
			continue
		}
		beans = append(beans, FormBean{Name: b.Name, Type: b.Type, ConfigPath: relPath})
	}
	return actions, beans, nil
}

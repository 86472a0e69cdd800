package bridge

import (
	_ "embed"
	"strings"
	"text/template"
)

// DefaultName is the global the page script looks the bridge up under.
const DefaultName = "nativeWrapper"

//go:embed inject.js
var injectSource string

var injectTemplate = template.Must(template.New("inject.js").Parse(injectSource))

// ScriptParams fills the page script template.
type ScriptParams struct {
	// Name of the bridge global, DefaultName when empty.
	Name string
	// Visualize adds the robot link that opens the debug menu.
	Visualize bool
	// Endpoint is the HTTP host base URL used when the global is missing.
	// Empty means the host always provides the global.
	Endpoint string
}

// RenderScript returns the page script for p.
func RenderScript(p ScriptParams) (string, error) {
	if p.Name == "" {
		p.Name = DefaultName
	}
	p.Endpoint = strings.TrimRight(p.Endpoint, "/")

	var sb strings.Builder
	if err := injectTemplate.Execute(&sb, p); err != nil {
		return "", err
	}
	return sb.String(), nil
}

package flow

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/aretw0/talebot/pkg/validate"
	"gopkg.in/yaml.v3"
)

//go:embed flows.yaml
var defaultFlows []byte

type document struct {
	Flows []*Definition `yaml:"flows"`
}

// Default compiles the built-in flow table.
func Default(registry *validate.Registry) (*Table, error) {
	return Parse(defaultFlows, registry)
}

// DefaultSource returns the built-in flow document.
func DefaultSource() []byte {
	return append([]byte(nil), defaultFlows...)
}

// Parse compiles a YAML flow document.
func Parse(data []byte, registry *validate.Registry) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse flows: %w", err)
	}
	if len(doc.Flows) == 0 {
		return nil, fmt.Errorf("flow document defines no flows")
	}
	return compile(doc.Flows, registry)
}

// LoadFile compiles the YAML flow document at path.
func LoadFile(path string, registry *validate.Registry) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flows: %w", err)
	}
	return Parse(data, registry)
}

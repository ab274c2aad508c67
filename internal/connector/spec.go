package connector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Spec defines the YAML document for a connector. Multiple connectors
// may live in one file as separate YAML documents.
type Spec struct {
	// API version for future compatibility
	APIVersion string `yaml:"apiVersion,omitempty"`
	// Kind is always "Connector"
	Kind string `yaml:"kind,omitempty"`

	ID             string         `yaml:"id"`
	MaxConnections int            `yaml:"maxConnections,omitempty"`
	Priority       float64        `yaml:"priority,omitempty"`
	RemoteFunction RemoteFunction `yaml:"remoteFunction"`
}

// ParseFile parses a YAML file containing one or more connector specs.
func ParseFile(path string) ([]*Connector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// ParseDir parses every .yaml/.yml file in a directory, in name order.
// Files are parsed independently, so documents of one connector may not
// be split across files.
func ParseDir(dir string) ([]*Connector, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read spec directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var connectors []*Connector
	for _, path := range paths {
		cs, err := ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		connectors = append(connectors, cs...)
	}

	if len(connectors) == 0 {
		return nil, fmt.Errorf("no connector specs found in %s", dir)
	}
	return connectors, nil
}

// Parse parses YAML content containing one or more connector specs.
func Parse(r io.Reader) ([]*Connector, error) {
	decoder := yaml.NewDecoder(r)
	var connectors []*Connector

	for {
		var spec Spec
		err := decoder.Decode(&spec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}

		// Skip empty documents
		if spec.ID == "" && spec.RemoteFunction.Kind == "" {
			continue
		}

		c, err := spec.ToConnector()
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, c)
	}

	if len(connectors) == 0 {
		return nil, fmt.Errorf("no valid connector specs found")
	}

	return connectors, nil
}

// ToConnector converts a Spec to a validated Connector, applying defaults.
func (s *Spec) ToConnector() (*Connector, error) {
	c := &Connector{
		ID:             s.ID,
		MaxConnections: s.MaxConnections,
		Priority:       s.Priority,
		RemoteFunction: s.RemoteFunction,
	}

	// Apply defaults
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ExampleYAML returns an example connector spec file.
func ExampleYAML() string {
	return `# Meridian Connector Specification
apiVersion: meridian/v1
kind: Connector

id: space-store
maxConnections: 32
priority: 0.5
remoteFunction:
  type: awsLambda
  lambdaARN: arn:aws:lambda:us-east-1:123456789012:function:space-store
  # Optional role to assume for cross-account invocation
  roleARN: arn:aws:iam::123456789012:role/meridian-invoke
---
apiVersion: meridian/v1
kind: Connector

id: tag-index
priority: 0.2
remoteFunction:
  type: http
  url: http://tag-index.internal:8080/events
`
}

// Package connector models the configuration of remote event-processing
// backends. A connector ties a stable id to one remote function and the
// dispatch limits the hub must respect when invoking it.
package connector

import "fmt"

// FunctionKind discriminates remote function backends.
type FunctionKind string

const (
	FunctionAWSLambda FunctionKind = "awsLambda"
	FunctionHTTP      FunctionKind = "http"
)

// IsValid reports whether the kind is a known backend type.
func (k FunctionKind) IsValid() bool {
	switch k {
	case FunctionAWSLambda, FunctionHTTP:
		return true
	}
	return false
}

// RemoteFunction describes the backend a connector dispatches events to.
// Exactly one backend-specific field set is meaningful, selected by Kind.
type RemoteFunction struct {
	Kind FunctionKind `json:"type" yaml:"type"`

	// AWS Lambda backends. RoleARN is optional; when set, invocations
	// authenticate through an assumed role instead of the default chain.
	LambdaARN string `json:"lambdaARN,omitempty" yaml:"lambdaARN,omitempty"`
	RoleARN   string `json:"roleARN,omitempty" yaml:"roleARN,omitempty"`

	// HTTP backends.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Connector is the unit of dispatch configuration. MaxConnections caps
// concurrent requests to the backend; Priority is this connector's share
// of the global dispatch budget, between 0 and 1.
type Connector struct {
	ID             string         `json:"id" yaml:"id"`
	MaxConnections int            `json:"maxConnections" yaml:"maxConnections"`
	Priority       float64        `json:"priority" yaml:"priority"`
	RemoteFunction RemoteFunction `json:"remoteFunction" yaml:"remoteFunction"`
}

const (
	// DefaultMaxConnections applies when a connector does not declare a
	// connection cap.
	DefaultMaxConnections = 64
)

// Validate checks the connector for the invariants the dispatch layer
// relies on.
func (c *Connector) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("connector %q: maxConnections must be positive", c.ID)
	}
	if c.Priority < 0 || c.Priority > 1 {
		return fmt.Errorf("connector %q: priority must be within [0, 1]", c.ID)
	}
	if !c.RemoteFunction.Kind.IsValid() {
		return fmt.Errorf("connector %q: invalid remote function type: %s (valid: awsLambda, http)", c.ID, c.RemoteFunction.Kind)
	}
	switch c.RemoteFunction.Kind {
	case FunctionAWSLambda:
		if c.RemoteFunction.LambdaARN == "" {
			return fmt.Errorf("connector %q: lambdaARN is required for awsLambda functions", c.ID)
		}
	case FunctionHTTP:
		if c.RemoteFunction.URL == "" {
			return fmt.Errorf("connector %q: url is required for http functions", c.ID)
		}
	}
	return nil
}

package policy

import (
	"time"

	"github.com/openfroyo/zabbix-web/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the catalog.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity rejects the catalog.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The package must define a set
	// named deny.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the resource ID (Kind[Title]) that violated the policy.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Remediation provides suggested fixes.
	Remediation string `json:"remediation,omitempty"`
}

// PolicyResult represents the result of evaluating a catalog.
type PolicyResult struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists non-blocking findings.
	Warnings []PolicyViolation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedAt is when the policies were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// PolicyInput is the input document of one evaluation.
type PolicyInput struct {
	// Resource is the resource being evaluated.
	Resource *engine.Resource `json:"resource"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// PolicyContext describes the compilation a resource belongs to.
type PolicyContext struct {
	// Node is the host the catalog was compiled for.
	Node string `json:"node,omitempty"`

	// Family is the OS family of the host.
	Family string `json:"family,omitempty"`

	// Operation is the operation being performed.
	Operation string `json:"operation,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

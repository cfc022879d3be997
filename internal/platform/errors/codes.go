// Package errors provides structured domain errors for cred and grain computations.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Configuration errors
	CodeInvalidParameters Code = "INVALID_PARAMETERS"
	CodeInvalidParameter  Code = "INVALID_PARAMETER"

	// Graph errors
	CodeConflictingNode    Code = "CONFLICTING_NODE"
	CodeConflictingEdge    Code = "CONFLICTING_EDGE"
	CodeDanglingEdge       Code = "DANGLING_EDGE"
	CodeDegenerateGraph    Code = "DEGENERATE_GRAPH"
	CodeIncompatibleFormat Code = "INCOMPATIBLE_FORMAT"

	// Cred engine conditions
	CodeNonConvergence Code = "NON_CONVERGENCE"

	// Grain errors
	CodeInvalidBudget     Code = "INVALID_BUDGET"
	CodeInvalidWeights    Code = "INVALID_WEIGHTS"
	CodeUnknownPolicyType Code = "UNKNOWN_POLICY_TYPE"
	CodeBudgetMismatch    Code = "BUDGET_MISMATCH"

	// Ledger errors
	CodeIdentityNotFound      Code = "IDENTITY_NOT_FOUND"
	CodeIdentityInvalidName   Code = "IDENTITY_INVALID_NAME"
	CodeIdentityNameTaken     Code = "IDENTITY_NAME_TAKEN"
	CodeDuplicateDistribution Code = "DUPLICATE_DISTRIBUTION"
)

// Severity classifies how callers should react to a code.
type Severity int

const (
	// SeverityFatal aborts the run. These codes indicate a caller bug or bad
	// input and are never retried.
	SeverityFatal Severity = iota
	// SeverityWarning is reported alongside a usable result.
	SeverityWarning
)

// Severity maps domain codes to their handling class.
func (c Code) Severity() Severity {
	switch c {
	case CodeNonConvergence:
		return SeverityWarning
	default:
		return SeverityFatal
	}
}

// ExitCode maps domain codes to process exit codes for the CLI.
func (c Code) ExitCode() int {
	switch c {
	// Usage - configuration the operator can fix
	case CodeInvalidParameters,
		CodeInvalidParameter,
		CodeUnknownPolicyType,
		CodeInvalidBudget,
		CodeIncompatibleFormat:
		return 2

	// Data - inputs that disagree with each other
	case CodeConflictingNode,
		CodeConflictingEdge,
		CodeDanglingEdge,
		CodeDegenerateGraph,
		CodeInvalidWeights,
		CodeIdentityNotFound,
		CodeIdentityInvalidName,
		CodeIdentityNameTaken,
		CodeDuplicateDistribution:
		return 3

	case CodeNonConvergence:
		return 0

	default:
		return 1
	}
}

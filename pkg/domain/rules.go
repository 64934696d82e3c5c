package domain

import "context"

// EntityType identifies the type of record touched by a change.
type EntityType string

// EntityNode is the only persistent entity of the core schema.
const EntityNode EntityType = "node"

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the transaction change log.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes one mutation applied to an entity during a transaction.
// Rules evaluate over the accumulated change log before commit.
type Change struct {
	Entity EntityType
	Action Action
	Before *Node
	After  *Node
}

// Severity grades rule violations.
type Severity string

const (
	// SeverityBlock aborts the transaction.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but does not abort.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	NodeID   int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when a transaction is aborted by blocking
// violations.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by invariant rules"
}

// Rule is an invariant check executed against the transaction state just
// before commit. Rules read through the Transaction interface and must not
// mutate.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view Transaction, changes []Change) (Result, error)
}

// RulesEngine runs registered rules and aggregates their results.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules against the pending transaction
// state and merges their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view Transaction, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

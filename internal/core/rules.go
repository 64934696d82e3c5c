package core

import "github.com/AndreyMensh/TreeManagementApi/pkg/domain"

// NewDefaultRulesEngine returns an engine with the full invariant rule set
// every production store runs with. Tests construct narrower engines when
// they need to observe intermediate states.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(TreeIsolationRule())
	engine.Register(PathConsistencyRule())
	engine.Register(SingleRootRule())
	engine.Register(LeafDeletionRule())
	return engine
}

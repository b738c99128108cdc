// Package segment translates the closed rule-tree grammar of spec.md §3/§4.4
// into a recipient query. Grounded on internal/segmentation/types.go's
// Operator/ConditionType enums and query_builder.go's recursive
// AND/OR/NOT-with-parameterized-SQL pattern — trimmed from the teacher's
// much larger operator and condition-source set (profile/custom-field/
// event/tag dispatch) down to the spec's single flat attribute namespace
// plus the reserved consent_state column.
package segment

import (
	"encoding/json"
	"fmt"

	"github.com/ignite/transact-messaging/internal/domain"
)

var validOperators = map[domain.Operator]bool{
	domain.OpEquals: true, domain.OpNotEquals: true,
	domain.OpIn: true, domain.OpNotIn: true,
	domain.OpExists: true,
	domain.OpGT: true, domain.OpLT: true, domain.OpGTE: true, domain.OpLTE: true,
	domain.OpMatches: true,
}

var validLogic = map[domain.LogicOperator]bool{
	domain.LogicAnd: true, domain.LogicOr: true,
}

// rawNode mirrors the untyped JSON shape accepted at the API boundary.
type rawNode struct {
	Attribute  string          `json:"attribute"`
	Operator   string          `json:"operator"`
	Value      json.RawMessage `json:"value"`
	Logic      string          `json:"logic"`
	Conditions []rawNode       `json:"conditions"`
}

// ErrUnknownOperator is returned when a rule node names an operator, logic
// value, or shape outside the closed grammar.
type ErrUnknownOperator struct {
	Got string
}

func (e *ErrUnknownOperator) Error() string {
	return fmt.Sprintf("segment: unknown operator or shape %q", e.Got)
}

// Parse decodes raw JSON into the closed tagged-variant domain.RuleNode,
// rejecting unknown operators/logic/tags at parse time per spec.md §9's
// design note.
func Parse(raw json.RawMessage) (domain.RuleNode, error) {
	var n rawNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return domain.RuleNode{}, fmt.Errorf("segment: invalid rule JSON: %w", err)
	}
	return parseNode(n)
}

func parseNode(n rawNode) (domain.RuleNode, error) {
	isLeaf := n.Operator != ""
	isComposite := n.Logic != ""

	switch {
	case isLeaf && isComposite:
		return domain.RuleNode{}, &ErrUnknownOperator{Got: "node mixes leaf and composite fields"}
	case isLeaf:
		op := domain.Operator(n.Operator)
		if !validOperators[op] {
			return domain.RuleNode{}, &ErrUnknownOperator{Got: n.Operator}
		}
		if n.Attribute == "" {
			return domain.RuleNode{}, &ErrUnknownOperator{Got: "leaf missing attribute"}
		}
		var val interface{}
		if len(n.Value) > 0 {
			if err := json.Unmarshal(n.Value, &val); err != nil {
				return domain.RuleNode{}, fmt.Errorf("segment: invalid leaf value: %w", err)
			}
		}
		if (op == domain.OpIn || op == domain.OpNotIn) && !isArray(val) {
			return domain.RuleNode{}, fmt.Errorf("segment: operator %s requires an array value", op)
		}
		return domain.RuleNode{
			Kind:      domain.RuleLeaf,
			Attribute: n.Attribute,
			Operator:  op,
			Value:     val,
		}, nil
	case isComposite:
		logic := domain.LogicOperator(n.Logic)
		if !validLogic[logic] {
			return domain.RuleNode{}, &ErrUnknownOperator{Got: n.Logic}
		}
		children := make([]domain.RuleNode, 0, len(n.Conditions))
		for _, c := range n.Conditions {
			child, err := parseNode(c)
			if err != nil {
				return domain.RuleNode{}, err
			}
			children = append(children, child)
		}
		return domain.RuleNode{
			Kind:       domain.RuleComposite,
			Logic:      logic,
			Conditions: children,
		}, nil
	default:
		return domain.RuleNode{}, &ErrUnknownOperator{Got: "node is neither leaf nor composite"}
	}
}

func isArray(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}

// WithImplicitConsent wraps root in an implicit AND with the reserved
// consent_state = OPT_IN leaf, per spec.md §3/§4.4's "always implicitly
// AND-ed at the root" rule.
func WithImplicitConsent(root domain.RuleNode) domain.RuleNode {
	consentLeaf := domain.RuleNode{
		Kind:      domain.RuleLeaf,
		Attribute: domain.ConsentStateAttribute,
		Operator:  domain.OpEquals,
		Value:     string(domain.ConsentOptIn),
	}
	return domain.RuleNode{
		Kind:       domain.RuleComposite,
		Logic:      domain.LogicAnd,
		Conditions: []domain.RuleNode{consentLeaf, root},
	}
}

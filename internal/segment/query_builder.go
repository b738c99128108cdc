package segment

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ignite/transact-messaging/internal/domain"
)

// QueryBuilder compiles a domain.RuleNode into a parameterized SQL WHERE
// clause over the recipients table, grounded on
// internal/segmentation/query_builder.go's nextArg positional-placeholder
// counter and buildGroupCondition recursive AND/OR pattern — collapsed from
// the teacher's profile/custom-field/event/tag condition dispatch to this
// spec's single flat recipient attribute namespace.
type QueryBuilder struct {
	args       []interface{}
	argCounter int
}

// NewQueryBuilder creates a QueryBuilder with a fresh argument list.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{argCounter: 1}
}

func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

// Build compiles root (already wrapped with the implicit consent AND by the
// caller) into a WHERE-clause fragment and its positional arguments.
func (qb *QueryBuilder) Build(root domain.RuleNode) (string, []interface{}, error) {
	qb.args = nil
	qb.argCounter = 1
	sql, err := qb.buildNode(root)
	if err != nil {
		return "", nil, err
	}
	if sql == "" {
		sql = "1=1"
	}
	return sql, qb.args, nil
}

func (qb *QueryBuilder) buildNode(n domain.RuleNode) (string, error) {
	switch n.Kind {
	case domain.RuleLeaf:
		return qb.buildLeaf(n)
	case domain.RuleComposite:
		parts := make([]string, 0, len(n.Conditions))
		for _, c := range n.Conditions {
			sql, err := qb.buildNode(c)
			if err != nil {
				return "", err
			}
			if sql != "" {
				parts = append(parts, "("+sql+")")
			}
		}
		if len(parts) == 0 {
			return "", nil
		}
		joiner := " AND "
		if n.Logic == domain.LogicOr {
			joiner = " OR "
		}
		return strings.Join(parts, joiner), nil
	default:
		return "", &ErrUnknownOperator{Got: string(n.Kind)}
	}
}

// attrExpr returns the SQL expression that reads the given attribute: the
// reserved consent_state name reads the recipients.consent_state column
// directly; every other name reads the JSONB attribute bag as text.
func attrExpr(attribute string) string {
	if attribute == domain.ConsentStateAttribute {
		return "r.consent_state"
	}
	return fmt.Sprintf("r.attributes ->> %s", pgQuoteLiteral(attribute))
}

// pgQuoteLiteral embeds a Go string as a single-quoted SQL literal used for
// a JSONB key name (not user data reaching the DB as an argument would be
// parameterized instead; this is the key name chosen from the closed rule
// grammar, analogous to the teacher's "s."+cond.Field column-name splice).
func pgQuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (qb *QueryBuilder) buildLeaf(n domain.RuleNode) (string, error) {
	field := attrExpr(n.Attribute)

	switch n.Operator {
	case domain.OpEquals:
		return fmt.Sprintf("%s = %s", field, qb.nextArg(fmt.Sprintf("%v", n.Value))), nil
	case domain.OpNotEquals:
		return fmt.Sprintf("(%s IS NULL OR %s != %s)", field, field, qb.nextArg(fmt.Sprintf("%v", n.Value))), nil
	case domain.OpExists:
		if n.Attribute == domain.ConsentStateAttribute {
			return "TRUE", nil
		}
		return fmt.Sprintf("r.attributes ? %s", qb.nextArg(n.Attribute)), nil
	case domain.OpGT, domain.OpLT, domain.OpGTE, domain.OpLTE:
		op := map[domain.Operator]string{
			domain.OpGT: ">", domain.OpLT: "<", domain.OpGTE: ">=", domain.OpLTE: "<=",
		}[n.Operator]
		return fmt.Sprintf("(%s)::numeric %s %s::numeric", field, op, qb.nextArg(fmt.Sprintf("%v", n.Value))), nil
	case domain.OpMatches:
		pattern, _ := n.Value.(string)
		anchored := "^(?:" + pattern + ")$"
		return fmt.Sprintf("%s ~ %s", field, qb.nextArg(anchored)), nil
	case domain.OpIn, domain.OpNotIn:
		values, _ := n.Value.([]interface{})
		strs := make([]string, len(values))
		for i, v := range values {
			strs[i] = fmt.Sprintf("%v", v)
		}
		placeholder := qb.nextArg(pq.Array(strs))
		if n.Operator == domain.OpIn {
			return fmt.Sprintf("%s = ANY(%s::text[])", field, placeholder), nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s != ALL(%s::text[]))", field, field, placeholder), nil
	default:
		return "", &ErrUnknownOperator{Got: string(n.Operator)}
	}
}

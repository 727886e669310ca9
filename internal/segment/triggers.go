package segment

import (
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// ExtractEventTriggers statically collects the event names an evaluator
// compares against: string literals V where the AST contains
// events.name = V, V = events.name, or events.name IN (..., V, ...).
// A query the parser cannot handle yields no triggers; such a segment
// is still evaluated on the non-event paths.
func ExtractEventTriggers(sqlText string) []string {
	// MySQL backtick quoting confuses nothing here once stripped; the
	// identifiers we care about are plain.
	stripped := strings.ReplaceAll(sqlText, "`", "")

	stmt, err := sqlparser.Parse(stripped)
	if err != nil {
		return nil
	}

	set := make(map[string]struct{})
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		cmp, ok := node.(*sqlparser.ComparisonExpr)
		if !ok {
			return true, nil
		}
		switch cmp.Operator {
		case sqlparser.EqualStr:
			if isEventsNameCol(cmp.Left) {
				collectStrVal(set, cmp.Right)
			}
			if isEventsNameCol(cmp.Right) {
				collectStrVal(set, cmp.Left)
			}
		case sqlparser.InStr:
			if isEventsNameCol(cmp.Left) {
				if tuple, ok := cmp.Right.(sqlparser.ValTuple); ok {
					for _, elem := range tuple {
						collectStrVal(set, elem)
					}
				}
			}
		}
		return true, nil
	}, stmt)

	if len(set) == 0 {
		return nil
	}
	events := make([]string, 0, len(set))
	for event := range set {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func isEventsNameCol(expr sqlparser.Expr) bool {
	col, ok := expr.(*sqlparser.ColName)
	if !ok {
		return false
	}
	return col.Name.EqualString("name") &&
		strings.EqualFold(col.Qualifier.Name.String(), "events")
}

func collectStrVal(set map[string]struct{}, expr sqlparser.Expr) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.StrVal {
		return
	}
	set[string(val.Val)] = struct{}{}
}

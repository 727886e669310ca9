package sandbox

import "strings"

// RenderSubject evaluates an authored subject. Subjects arrive in two
// forms: an expression of (user[, event]) returning a string, or
// tagged text like "Order <%= event.id %>". Tagged text renders as a
// template over vars; anything else is invoked as an expression with
// vars.user and, when present, vars.event.
func (s *Sandbox) RenderSubject(source string, vars map[string]interface{}) (string, error) {
	if strings.Contains(source, "<%") {
		return s.RenderTemplate(source, "", vars)
	}
	userDoc, _ := vars["user"].(map[string]interface{})
	if eventDoc, ok := vars["event"].(map[string]interface{}); ok {
		return s.EvalUserEventExpr(source, userDoc, eventDoc)
	}
	return s.EvalUserExpr(source, userDoc)
}

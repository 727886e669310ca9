// Package sandbox executes operator-authored JavaScript: subject
// expressions, embedded-expression HTML templates, and resumable flow
// programs. Every call runs in a fresh goja runtime with no host
// capabilities, so authored code cannot touch the network, the
// filesystem, or state from a previous call.
package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/ignite/segflow/internal/engine"
)

// Sandbox is stateless; the zero value is usable. A value exists so
// callers depend on an instance rather than package functions.
type Sandbox struct{}

// New returns a Sandbox.
func New() *Sandbox { return &Sandbox{} }

// StepResult is the outcome of driving a flow one yield forward.
type StepResult struct {
	// Value is the yielded command object, nil when the flow returned.
	Value map[string]interface{}
	// Done reports that the flow returned before reaching the target
	// yield.
	Done bool
	// Attributes is the ctx.attributes document as the flow left it.
	Attributes map[string]interface{}
}

// EvalUserExpr invokes source, an expression of one parameter, as
// source(user) and coerces the result to a string.
func (s *Sandbox) EvalUserExpr(source string, user map[string]interface{}) (string, error) {
	return callExpr(source, user)
}

// EvalUserEventExpr invokes source as source(user, event) and coerces
// the result to a string.
func (s *Sandbox) EvalUserEventExpr(source string, user, event map[string]interface{}) (string, error) {
	return callExpr(source, user, event)
}

func callExpr(source string, args ...map[string]interface{}) (string, error) {
	vm := goja.New()

	fnVal, err := vm.RunString("(" + source + ")")
	if err != nil {
		return "", sandboxErr(err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return "", &engine.SandboxError{Msg: "expression is not a function"}
	}

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = vm.ToValue(a)
	}

	res, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return "", sandboxErr(err)
	}
	return res.String(), nil
}

// stepHarness drives the generator. ctx.attributes is rebound from the
// next historical state immediately before each next(), so conditional
// branches replay exactly as they ran the first time.
const stepHarness = `
(function () {
	var rt = {
		sendEmail: function (templateId) { return { type: "SEND_EMAIL", templateId: templateId }; },
		wait: function (duration) { return { type: "WAIT", duration: duration }; },
		sendSMS: function (message) { return { type: "SEND_SMS", message: message }; }
	};
	var ctx = { attributes: __attrStates.length > 0 ? __attrStates[0] : {} };
	var gen = __flow(ctx, rt);
	if (!gen || typeof gen.next !== "function") {
		throw new Error("flow did not return a generator");
	}
	var res = { value: undefined, done: true };
	for (var i = 0; i <= __target; i++) {
		ctx.attributes = __attrStates[i];
		res = gen.next();
		if (res.done) break;
	}
	return {
		value: res.done ? undefined : res.value,
		done: !!res.done,
		attributes: ctx.attributes
	};
})()
`

// StepFlow re-executes flowSource from its first yield, advancing
// exactly targetIndex+1 yields. attrStates[i] is the attribute document
// presented to ctx.attributes immediately before the i-th yield; the
// possibly mutated document is read back out of the runtime afterwards.
func (s *Sandbox) StepFlow(flowSource string, attrStates []map[string]interface{}, targetIndex int) (*StepResult, error) {
	if targetIndex < 0 || targetIndex >= len(attrStates) {
		return nil, fmt.Errorf("target index %d outside attribute states (%d)", targetIndex, len(attrStates))
	}

	vm := goja.New()

	flowVal, err := vm.RunString("(" + flowSource + ")")
	if err != nil {
		return nil, sandboxErr(err)
	}
	if _, ok := goja.AssertFunction(flowVal); !ok {
		return nil, &engine.SandboxError{Msg: "flow is not a function"}
	}

	states := make([]interface{}, len(attrStates))
	for i, a := range attrStates {
		states[i] = a
	}

	_ = vm.Set("__flow", flowVal)
	_ = vm.Set("__attrStates", vm.ToValue(states))
	_ = vm.Set("__target", targetIndex)

	resVal, err := vm.RunString(stepHarness)
	if err != nil {
		return nil, sandboxErr(err)
	}

	exported, ok := resVal.Export().(map[string]interface{})
	if !ok {
		return nil, &engine.SandboxError{Msg: "flow harness returned unexpected value"}
	}

	out := &StepResult{}
	if done, ok := exported["done"].(bool); ok {
		out.Done = done
	}
	if attrs, ok := exported["attributes"].(map[string]interface{}); ok {
		out.Attributes = attrs
	}
	if val, ok := exported["value"].(map[string]interface{}); ok {
		out.Value = val
	}
	return out, nil
}

// sandboxErr converts a goja failure into a SandboxError carrying the
// thrown value's message.
func sandboxErr(err error) error {
	if ex, ok := err.(*goja.Exception); ok {
		return &engine.SandboxError{Msg: ex.Value().String()}
	}
	return &engine.SandboxError{Msg: err.Error()}
}

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segflow/internal/engine"
)

func TestEvalUserExpr(t *testing.T) {
	sb := New()

	got, err := sb.EvalUserExpr(`(user) => "Hello, " + user.name`, map[string]interface{}{
		"name": "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", got)
}

func TestEvalUserExprCoercesToString(t *testing.T) {
	sb := New()

	got, err := sb.EvalUserExpr(`(user) => user.count`, map[string]interface{}{
		"count": 42,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestEvalUserExprThrowSurfacesAsSandboxError(t *testing.T) {
	sb := New()

	_, err := sb.EvalUserExpr(`(user) => { throw new Error("boom"); }`, map[string]interface{}{})
	require.Error(t, err)
	var sandboxErr *engine.SandboxError
	require.ErrorAs(t, err, &sandboxErr)
	assert.Contains(t, sandboxErr.Msg, "boom")
}

func TestEvalUserExprNotAFunction(t *testing.T) {
	sb := New()

	_, err := sb.EvalUserExpr(`42`, map[string]interface{}{})
	var sandboxErr *engine.SandboxError
	require.ErrorAs(t, err, &sandboxErr)
}

func TestEvalUserEventExpr(t *testing.T) {
	sb := New()

	got, err := sb.EvalUserEventExpr(
		`(user, event) => "Order " + event.id + " for " + user.name`,
		map[string]interface{}{"name": "Ada"},
		map[string]interface{}{"id": "o1"},
	)
	require.NoError(t, err)
	assert.Equal(t, "Order o1 for Ada", got)
}

const twoYieldFlow = `function* (ctx, rt) {
	yield rt.sendEmail("welcome");
	yield rt.wait({ seconds: 60 });
}`

func TestStepFlowFirstYield(t *testing.T) {
	sb := New()

	attrs := map[string]interface{}{"email": "a@x", "name": "A"}
	result, err := sb.StepFlow(twoYieldFlow, []map[string]interface{}{attrs}, 0)
	require.NoError(t, err)

	assert.False(t, result.Done)
	require.NotNil(t, result.Value)
	assert.Equal(t, "SEND_EMAIL", result.Value["type"])
	assert.Equal(t, "welcome", result.Value["templateId"])
}

func TestStepFlowSecondYield(t *testing.T) {
	sb := New()

	attrs := map[string]interface{}{"email": "a@x"}
	states := []map[string]interface{}{attrs, attrs}
	result, err := sb.StepFlow(twoYieldFlow, states, 1)
	require.NoError(t, err)

	assert.False(t, result.Done)
	require.NotNil(t, result.Value)
	assert.Equal(t, "WAIT", result.Value["type"])
	duration, ok := result.Value["duration"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 60, duration["seconds"])
}

func TestStepFlowDone(t *testing.T) {
	sb := New()

	attrs := map[string]interface{}{"email": "a@x"}
	states := []map[string]interface{}{attrs, attrs, attrs}
	result, err := sb.StepFlow(twoYieldFlow, states, 2)
	require.NoError(t, err)

	assert.True(t, result.Done)
	assert.Nil(t, result.Value)
}

// The flow branches on the attribute state bound before each yield, so
// replaying with the recorded states must reproduce the original path.
func TestStepFlowRebindsAttributesBetweenYields(t *testing.T) {
	sb := New()

	flow := `function* (ctx, rt) {
		if (ctx.attributes.plan === "pro") {
			yield rt.sendEmail("pro-welcome");
		} else {
			yield rt.sendEmail("basic-welcome");
		}
		if (ctx.attributes.plan === "pro") {
			yield rt.sendEmail("pro-followup");
		} else {
			yield rt.sendEmail("basic-followup");
		}
	}`

	states := []map[string]interface{}{
		{"email": "a@x", "plan": "basic"},
		{"email": "a@x", "plan": "pro"},
	}

	result, err := sb.StepFlow(flow, states, 1)
	require.NoError(t, err)
	assert.Equal(t, "pro-followup", result.Value["templateId"])
}

func TestStepFlowReturnsMutatedAttributes(t *testing.T) {
	sb := New()

	flow := `function* (ctx, rt) {
		ctx.attributes.welcomed = true;
		yield rt.sendEmail("welcome");
	}`

	result, err := sb.StepFlow(flow, []map[string]interface{}{{"email": "a@x"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, true, result.Attributes["welcomed"])
	assert.Equal(t, "a@x", result.Attributes["email"])
}

func TestStepFlowUndefinedYield(t *testing.T) {
	sb := New()

	flow := `function* (ctx, rt) { yield undefined; }`
	result, err := sb.StepFlow(flow, []map[string]interface{}{{"email": "a@x"}}, 0)
	require.NoError(t, err)

	assert.False(t, result.Done)
	assert.Nil(t, result.Value)
}

func TestStepFlowThrow(t *testing.T) {
	sb := New()

	flow := `function* (ctx, rt) { throw new Error("bad flow"); }`
	_, err := sb.StepFlow(flow, []map[string]interface{}{{"email": "a@x"}}, 0)
	var sandboxErr *engine.SandboxError
	require.ErrorAs(t, err, &sandboxErr)
	assert.Contains(t, sandboxErr.Msg, "bad flow")
}

func TestStepFlowNotAGenerator(t *testing.T) {
	sb := New()

	flow := `function (ctx, rt) { return 1; }`
	_, err := sb.StepFlow(flow, []map[string]interface{}{{"email": "a@x"}}, 0)
	var sandboxErr *engine.SandboxError
	require.ErrorAs(t, err, &sandboxErr)
}

func TestStepFlowSendSMSCommand(t *testing.T) {
	sb := New()

	flow := `function* (ctx, rt) { yield rt.sendSMS("hi"); }`
	result, err := sb.StepFlow(flow, []map[string]interface{}{{"email": "a@x"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "SEND_SMS", result.Value["type"])
	assert.Equal(t, "hi", result.Value["message"])
}

func TestRenderSubjectTaggedText(t *testing.T) {
	sb := New()

	got, err := sb.RenderSubject("Welcome, <%= user.name %>", map[string]interface{}{
		"user": map[string]interface{}{"name": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome, A", got)
}

func TestRenderSubjectExpression(t *testing.T) {
	sb := New()

	got, err := sb.RenderSubject(`(user, event) => "Order " + event.id`, map[string]interface{}{
		"user":  map[string]interface{}{"name": "N"},
		"event": map[string]interface{}{"id": "o1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Order o1", got)
}

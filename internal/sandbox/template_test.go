package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segflow/internal/engine"
)

func TestRenderTemplateInterpolation(t *testing.T) {
	sb := New()

	got, err := sb.RenderTemplate("<p>Hi <%= user.name %></p>", "", map[string]interface{}{
		"user": map[string]interface{}{"name": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<p>Hi A</p>", got)
}

func TestRenderTemplateStatements(t *testing.T) {
	sb := New()

	source := `<ul><% for (var i = 0; i < user.items.length; i++) { %><li><%= user.items[i] %></li><% } %></ul>`
	got, err := sb.RenderTemplate(source, "", map[string]interface{}{
		"user": map[string]interface{}{"items": []interface{}{"a", "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>a</li><li>b</li></ul>", got)
}

func TestRenderTemplatePreamble(t *testing.T) {
	sb := New()

	got, err := sb.RenderTemplate(
		"<p><%= greeting %> <%= user.name %></p>",
		`var greeting = user.vip ? "Welcome back," : "Hello,";`,
		map[string]interface{}{
			"user": map[string]interface{}{"name": "A", "vip": true},
		})
	require.NoError(t, err)
	assert.Equal(t, "<p>Welcome back, A</p>", got)
}

func TestRenderTemplateNullAndUndefined(t *testing.T) {
	sb := New()

	got, err := sb.RenderTemplate("[<%= user.missing %>][<%= null %>]", "", map[string]interface{}{
		"user": map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, "[][]", got)
}

func TestRenderTemplateNumbers(t *testing.T) {
	sb := New()

	got, err := sb.RenderTemplate("<%= user.name %>: $<%= event.amount %>", "", map[string]interface{}{
		"user":  map[string]interface{}{"name": "N"},
		"event": map[string]interface{}{"amount": 42},
	})
	require.NoError(t, err)
	assert.Equal(t, "N: $42", got)
}

func TestRenderTemplateLiteralEscaping(t *testing.T) {
	sb := New()

	source := "line1\nsays \"hi\" <%= user.name %>"
	got, err := sb.RenderTemplate(source, "", map[string]interface{}{
		"user": map[string]interface{}{"name": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "line1\nsays \"hi\" A", got)
}

func TestRenderTemplateUnterminatedTag(t *testing.T) {
	sb := New()

	_, err := sb.RenderTemplate("<p><%= user.name", "", map[string]interface{}{})
	var sandboxErr *engine.SandboxError
	require.ErrorAs(t, err, &sandboxErr)
}

func TestRenderTemplateThrowInExpression(t *testing.T) {
	sb := New()

	_, err := sb.RenderTemplate("<%= missing.deep.path %>", "", map[string]interface{}{})
	var sandboxErr *engine.SandboxError
	require.ErrorAs(t, err, &sandboxErr)
}

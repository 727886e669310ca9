package sandbox

import (
	"encoding/json"
	"strings"

	"github.com/dop251/goja"

	"github.com/ignite/segflow/internal/engine"
)

// RenderTemplate renders an HTML body containing embedded-expression
// tags: <%= expr %> interpolates, <% stmt %> executes. The preamble
// runs as a statement block before the body, and vars are bound as
// top-level names in the runtime.
func (s *Sandbox) RenderTemplate(htmlSource, preambleSource string, vars map[string]interface{}) (string, error) {
	program, err := compileTemplate(htmlSource, preambleSource)
	if err != nil {
		return "", err
	}

	vm := goja.New()
	for name, val := range vars {
		_ = vm.Set(name, vm.ToValue(val))
	}

	resVal, err := vm.RunString(program)
	if err != nil {
		return "", sandboxErr(err)
	}
	return resVal.String(), nil
}

// compileTemplate translates the tagged source into a JS program whose
// final expression is the rendered string. null and undefined
// interpolate as empty text.
func compileTemplate(htmlSource, preambleSource string) (string, error) {
	var b strings.Builder
	b.WriteString("(function () {\n")
	b.WriteString("var __str = function (v) { return v === null || v === undefined ? \"\" : String(v); };\n")
	b.WriteString("var __out = [];\n")
	if strings.TrimSpace(preambleSource) != "" {
		b.WriteString(preambleSource)
		b.WriteString("\n;\n")
	}

	rest := htmlSource
	for {
		open := strings.Index(rest, "<%")
		if open < 0 {
			writeLiteral(&b, rest)
			break
		}
		writeLiteral(&b, rest[:open])
		rest = rest[open+2:]

		interpolate := strings.HasPrefix(rest, "=")
		if interpolate {
			rest = rest[1:]
		}

		end := strings.Index(rest, "%>")
		if end < 0 {
			return "", &engine.SandboxError{Msg: "template: unterminated <% tag"}
		}
		code := rest[:end]
		rest = rest[end+2:]

		if interpolate {
			b.WriteString("__out.push(__str(")
			b.WriteString(code)
			b.WriteString("));\n")
		} else {
			b.WriteString(code)
			b.WriteString("\n;\n")
		}
	}

	b.WriteString("return __out.join(\"\");\n")
	b.WriteString("})()")
	return b.String(), nil
}

func writeLiteral(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	// JSON string literals are valid JS string literals.
	quoted, _ := json.Marshal(text)
	b.WriteString("__out.push(")
	b.Write(quoted)
	b.WriteString(");\n")
}

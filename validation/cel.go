package validation

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/knograph/kgcoord/kg"
)

// celEnv declares the variables available to rule expressions: the event
// action, its data payload, and the acting role.
func celEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("role", cel.StringType),
	)
}

// CompileRule compiles a CEL expression into a named validation rule.
// The expression must evaluate to a bool; a false result produces the
// given message at the given severity. Example:
//
//	rule, err := validation.CompileRule("no_temp_ids", validation.SeverityWarning,
//	    `!data.id.startsWith("tmp_")`, "temporary IDs should not be persisted")
//	engine.AddCustomRule(kg.ActionCreateEntity, rule)
func CompileRule(name, severity, expression, message string) (NamedRule, error) {
	env, err := celEnv()
	if err != nil {
		return NamedRule{}, fmt.Errorf("failed to create rule environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return NamedRule{}, fmt.Errorf("failed to compile rule %q: %w", name, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return NamedRule{}, fmt.Errorf("rule %q must evaluate to bool, got %s", name, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return NamedRule{}, fmt.Errorf("failed to build rule program %q: %w", name, err)
	}

	fn := func(event kg.KnowledgeEvent) RuleOutcome {
		out, _, err := program.Eval(map[string]any{
			"action": event.Action,
			"data":   event.Data,
			"role":   string(event.Role),
		})
		if err != nil {
			return RuleOutcome{Errors: []string{fmt.Sprintf("rule %q evaluation failed: %v", name, err)}}
		}
		passed, ok := out.Value().(bool)
		if !ok {
			return RuleOutcome{Errors: []string{fmt.Sprintf("rule %q returned non-bool result", name)}}
		}
		if passed {
			return RuleOutcome{}
		}
		if severity == SeverityWarning {
			return RuleOutcome{Warnings: []string{message}}
		}
		return RuleOutcome{Errors: []string{message}}
	}

	return NamedRule{Name: name, Severity: severity, Fn: fn}, nil
}

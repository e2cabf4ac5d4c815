package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-freight/lanemeter/internal/domain"
)

// ConditionEvaluator compiles and evaluates the optional CEL guard
// expressions on surcharge rules. Programs are compiled once per rule
// and cached; an expression that does not compile or does not return
// bool is a configuration error.
type ConditionEvaluator struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[int64]cel.Program
}

// NewConditionEvaluator creates the evaluator with the cargo variables
// guard expressions may reference.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("length_cm", cel.DoubleType),
		cel.Variable("width_cm", cel.DoubleType),
		cel.Variable("height_cm", cel.DoubleType),
		cel.Variable("weight_kg", cel.DoubleType),
		cel.Variable("cbm", cel.DoubleType),
		cel.Variable("unit_count", cel.IntType),
		cel.Variable("flags", cel.ListType(cel.StringType)),
		cel.Variable("carrier", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("port", cel.StringType),
		cel.Variable("vessel_name", cel.StringType),
		cel.Variable("vessel_class", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ConditionEvaluator{
		env:      env,
		programs: make(map[int64]cel.Program),
	}, nil
}

// ValidateExpression compiles an expression without caching, for
// authoring-time validation.
func (e *ConditionEvaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := e.compile(expr)
	return err
}

// Matches reports whether the rule's guard holds for the cargo. Rules
// without a guard always match.
func (e *ConditionEvaluator) Matches(rule *domain.SurchargeRule, cargo *domain.CargoInput) (bool, error) {
	if rule.Condition == "" {
		return true, nil
	}

	program, err := e.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(activation(cargo))
	if err != nil {
		return false, fmt.Errorf("surcharge rule %d (%s): condition evaluation: %w", rule.ID, rule.EventCode, err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("surcharge rule %d (%s): %w: condition returned %T", rule.ID, rule.EventCode, domain.ErrInvalidRuleParams, out)
	}
	return bool(b), nil
}

func (e *ConditionEvaluator) program(rule *domain.SurchargeRule) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[rule.ID]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := e.compile(rule.Condition)
	if err != nil {
		return nil, fmt.Errorf("surcharge rule %d (%s): %w", rule.ID, rule.EventCode, err)
	}

	e.mu.Lock()
	e.programs[rule.ID] = program
	e.mu.Unlock()

	return program, nil
}

func (e *ConditionEvaluator) compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: condition %q: %v", domain.ErrInvalidRuleParams, expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: condition %q must return bool, got %s", domain.ErrInvalidRuleParams, expr, ast.OutputType())
	}
	return e.env.Program(ast)
}

func activation(cargo *domain.CargoInput) map[string]any {
	flags := cargo.Flags
	if flags == nil {
		flags = []string{}
	}
	return map[string]any{
		"length_cm":    cargo.LengthCm,
		"width_cm":     cargo.WidthCm,
		"height_cm":    cargo.HeightCm,
		"weight_kg":    cargo.WeightKg,
		"cbm":          cargo.CBM,
		"unit_count":   int64(cargo.UnitCount),
		"flags":        flags,
		"carrier":      cargo.CarrierID,
		"category":     cargo.Category,
		"port":         strOrEmpty(cargo.PortID),
		"vessel_name":  strOrEmpty(cargo.VesselName),
		"vessel_class": strOrEmpty(cargo.VesselClass),
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Package eligibility narrows candidate pools with CEL expressions.
//
// Expressions see three variables:
//
//   - requester: the requesting profile
//   - candidate: the candidate profile
//   - features:  the extracted factor map, keyed by factor name
//
// Profile maps carry every field; unknown optional values are null, so
// expressions should guard them, e.g. `candidate.headcount != null && candidate.headcount > 10`.
package eligibility

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/okian/matchlearn/internal/domain/model"
)

var (
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func env() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("requester", cel.DynType),
			cel.Variable("candidate", cel.DynType),
			cel.Variable("features", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Filter is a compiled eligibility expression. It is safe for concurrent use.
type Filter struct {
	expr string
	prg  cel.Program
}

// Compile parses expr. An empty expression yields a nil Filter that admits
// every candidate.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, issues.Err())
	}
	prg, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Allow reports whether candidate is eligible for requester.
func (f *Filter) Allow(requester, candidate model.Profile, x model.FeatureVector) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prg.Eval(map[string]any{
		"requester": profileInput(requester),
		"candidate": profileInput(candidate),
		"features":  x.Map(),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluate, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, out.Value())
	}
	return ok, nil
}

func profileInput(p model.Profile) map[string]any {
	expertise := make([]string, len(p.Expertise))
	copy(expertise, p.Expertise)
	in := map[string]any{
		"id":               p.ID,
		"name":             p.Name,
		"city":             p.City,
		"region":           p.Region,
		"country":          p.Country,
		"expertise":        expertise,
		"stage":            p.Stage,
		"rating_count":     int64(p.RatingCount),
		"compliance_score": nil,
		"headcount":        nil,
		"rating":           nil,
	}
	if p.ComplianceScore != nil {
		in["compliance_score"] = *p.ComplianceScore
	}
	if p.Headcount != nil {
		in["headcount"] = int64(*p.Headcount)
	}
	if p.Rating != nil {
		in["rating"] = *p.Rating
	}
	return in
}

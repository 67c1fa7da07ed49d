package promotion

import (
	"context"
	"log/slog"

	"checkout-saga/internal/domain/promotion"
	"checkout-saga/internal/pkg/clock"
	"checkout-saga/internal/pkg/errs"
	"checkout-saga/internal/usecase/shared"

	"github.com/google/cel-go/cel"
)

type compiledRule struct {
	rule    *promotion.Rule
	program cel.Program
}

// Engine evaluates promotion rules in file order. Discounts of every
// matching rule add up unless an exclusive rule matches first; a matching
// reject rule fails the checkout.
type Engine struct {
	rules []compiledRule
	clock clock.Clock
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("userId", cel.StringType),
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("itemCount", cel.IntType),
		cel.Variable("skus", cel.ListType(cel.StringType)),
		cel.Variable("quantities", cel.MapType(cel.StringType, cel.IntType)),
	)
}

func NewEngine(rules []*promotion.Rule, clock clock.Clock) (*Engine, error) {
	env, err := newEnv()
	if err != nil {
		return nil, errs.Wrap(err, "build cel env")
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		ast, iss := env.Compile(r.Condition())
		if iss != nil && iss.Err() != nil {
			return nil, errs.Wrapf(iss.Err(), "compile rule %s", r.ID())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, errs.Newf("rule %s: condition must be bool, got %s", r.ID(), ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errs.Wrapf(err, "program rule %s", r.ID())
		}
		compiled = append(compiled, compiledRule{rule: r, program: prg})
	}
	return &Engine{rules: compiled, clock: clock}, nil
}

func (e *Engine) Evaluate(ctx context.Context, req shared.PromotionRequest) (shared.PromotionResult, error) {
	if err := ctx.Err(); err != nil {
		return shared.PromotionResult{}, err
	}

	vars := activation(req)
	now := e.clock.Now()
	var result shared.PromotionResult
	remaining := req.SubtotalCents

	for _, c := range e.rules {
		if !c.rule.IsValidAt(now) {
			continue
		}
		out, _, err := c.program.Eval(vars)
		if err != nil {
			return shared.PromotionResult{}, errs.Mark(errs.Wrapf(err, "evaluate rule %s", c.rule.ID()), errs.ErrPromotionInvalid)
		}
		matched, ok := out.Value().(bool)
		if !ok || !matched {
			continue
		}
		if c.rule.IsReject() {
			return shared.PromotionResult{}, errs.Wrapf(errs.ErrPromotionInvalid, "rejected by rule %s", c.rule.ID())
		}

		amount := c.rule.Discount().AmountFor(remaining)
		result.DiscountCents += amount
		result.Applied = append(result.Applied, c.rule.ID())
		remaining -= amount
		if c.rule.IsExclusive() {
			break
		}
	}

	if len(result.Applied) > 0 {
		slog.Debug("promotions applied",
			"saga_id", req.SagaID.String(),
			"applied", result.Applied,
			"discount_cents", result.DiscountCents)
	}
	return result, nil
}

func activation(req shared.PromotionRequest) map[string]any {
	skus := make([]string, 0, len(req.Items))
	quantities := make(map[string]int64, len(req.Items))
	var count int64
	for _, it := range req.Items {
		skus = append(skus, it.SKUCode)
		quantities[it.SKUCode] += it.Quantity
		count += it.Quantity
	}
	return map[string]any{
		"userId":     req.UserID,
		"subtotal":   req.SubtotalCents,
		"itemCount":  count,
		"skus":       skus,
		"quantities": quantities,
	}
}

package promotion

import (
	"os"
	"time"

	"checkout-saga/internal/domain/promotion"
	"checkout-saga/internal/pkg/errs"

	"gopkg.in/yaml.v3"
)

// rulesFile is the on-disk layout:
//
//	rules:
//	  - id: BULK10
//	    when: subtotal >= 10000
//	    percentOff: 10
//	  - id: BLOCKLIST
//	    when: userId in ['fraud-1']
//	    reject: true
type rulesFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	ID             string     `yaml:"id"`
	When           string     `yaml:"when"`
	AmountOffCents *int64     `yaml:"amountOffCents"`
	PercentOff     *float64   `yaml:"percentOff"`
	Reject         bool       `yaml:"reject"`
	Exclusive      bool       `yaml:"exclusive"`
	ValidFrom      *time.Time `yaml:"validFrom"`
	ValidTo        *time.Time `yaml:"validTo"`
}

func LoadRulesFile(path string) ([]*promotion.Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "read promotion rules %s", path)
	}
	return ParseRules(b)
}

func ParseRules(b []byte) ([]*promotion.Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errs.Wrap(err, "decode promotion rules")
	}
	rules := make([]*promotion.Rule, 0, len(f.Rules))
	seen := make(map[string]struct{}, len(f.Rules))
	for i, e := range f.Rules {
		r, err := promotion.NewRule(promotion.RuleParams{
			ID:             e.ID,
			Condition:      e.When,
			AmountOffCents: e.AmountOffCents,
			PercentOff:     e.PercentOff,
			Reject:         e.Reject,
			Exclusive:      e.Exclusive,
			ValidFrom:      e.ValidFrom,
			ValidTo:        e.ValidTo,
		})
		if err != nil {
			return nil, errs.Wrapf(err, "rule #%d (%s)", i+1, e.ID)
		}
		if _, dup := seen[r.ID()]; dup {
			return nil, errs.Newf("rule #%d: duplicate id %s", i+1, r.ID())
		}
		seen[r.ID()] = struct{}{}
		rules = append(rules, r)
	}
	return rules, nil
}

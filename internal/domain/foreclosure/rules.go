package foreclosure

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/turtacn/ForeclosureWatch/pkg/errors"
	"github.com/turtacn/ForeclosureWatch/pkg/normalize"
)

// Default indicator phrases. Matching is a case-insensitive substring test
// against each event type.
var (
	DefaultSaleIndicators = []string{
		"Report of Sale",
		"Report Of Foreclosure Sale",
		"Trustee Report of Sale",
		"Report of Foreclosure Sale (Chapter 45)",
	}
	DefaultUpsetBidIndicators = []string{
		"Upset Bid Filed",
		"Notice of Upset Bid",
	}
	DefaultOrderIndicators = []string{
		"Findings And Order Of Foreclosure",
		"Order for Sale",
		"Order Permitting Foreclosure",
	}
	DefaultInitiationIndicators = []string{
		"Foreclosure Case Initiated",
		"Notice of Foreclosure Hearing",
		"Special Proceeding Initiated",
	}
	DefaultComplicationIndicators = []string{
		"Bankruptcy",
		"Motion to Dismiss",
		"Dismissed",
		"Stay",
		"Set Aside",
		"Withdrawn",
	}
)

// DefaultBidIncreaseMultiplier is the minimum-next-bid factor (5% over the
// current bid). The statutory $750 floor is intentionally not applied.
var DefaultBidIncreaseMultiplier = decimal.RequireFromString("1.05")

// RuleConfig is the mutable, config-file shaped input to NewRuleSet.
type RuleConfig struct {
	SaleIndicators         []string `mapstructure:"sale_indicators" yaml:"sale_indicators"`
	UpsetBidIndicators     []string `mapstructure:"upset_bid_indicators" yaml:"upset_bid_indicators"`
	OrderIndicators        []string `mapstructure:"order_indicators" yaml:"order_indicators"`
	InitiationIndicators   []string `mapstructure:"initiation_indicators" yaml:"initiation_indicators"`
	ComplicationIndicators []string `mapstructure:"complication_indicators" yaml:"complication_indicators"`
	BidIncreaseMultiplier  string   `mapstructure:"bid_increase_multiplier" yaml:"bid_increase_multiplier"`
}

// RuleSet is an immutable snapshot of the classification and ledger rules.
// A RuleSet is built once and passed by value into each invocation; there
// is no package-level mutable rule state.
type RuleSet struct {
	sale         []string
	upsetBid     []string
	order        []string
	initiation   []string
	complication []string
	multiplier   decimal.Decimal
}

// DefaultRuleSet returns the built-in rules.
func DefaultRuleSet() RuleSet {
	rs, _ := NewRuleSet(RuleConfig{})
	return rs
}

// NewRuleSet normalizes cfg into a RuleSet. Empty lists fall back to the
// defaults. A multiplier that does not parse, or is not above 1, is an
// invariant violation.
func NewRuleSet(cfg RuleConfig) (RuleSet, error) {
	rs := RuleSet{
		sale:         normalizeIndicators(cfg.SaleIndicators, DefaultSaleIndicators),
		upsetBid:     normalizeIndicators(cfg.UpsetBidIndicators, DefaultUpsetBidIndicators),
		order:        normalizeIndicators(cfg.OrderIndicators, DefaultOrderIndicators),
		initiation:   normalizeIndicators(cfg.InitiationIndicators, DefaultInitiationIndicators),
		complication: normalizeIndicators(cfg.ComplicationIndicators, DefaultComplicationIndicators),
		multiplier:   DefaultBidIncreaseMultiplier,
	}
	if m := strings.TrimSpace(cfg.BidIncreaseMultiplier); m != "" {
		parsed, err := decimal.NewFromString(m)
		if err != nil {
			return DefaultRuleSet(), errors.InvariantViolation("bid increase multiplier is not a number").WithDetail("value=" + m)
		}
		if !parsed.GreaterThan(decimal.NewFromInt(1)) {
			return DefaultRuleSet(), errors.InvariantViolation("bid increase multiplier must be greater than 1").WithDetail("value=" + m)
		}
		rs.multiplier = parsed
	}
	return rs, nil
}

func normalizeIndicators(in, fallback []string) []string {
	src := in
	if len(src) == 0 {
		src = fallback
	}
	seen := make(map[string]struct{}, len(src))
	out := make([]string, 0, len(src))
	for _, s := range src {
		n := normalize.Text(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// matchAny returns the first indicator contained in eventType, or "".
// Indicators are already normalized.
func matchAny(eventType string, indicators []string) string {
	et := normalize.Text(eventType)
	if et == "" {
		return ""
	}
	for _, ind := range indicators {
		if strings.Contains(et, ind) {
			return ind
		}
	}
	return ""
}

// BidIncreaseMultiplier returns the minimum-next-bid factor.
func (r RuleSet) BidIncreaseMultiplier() decimal.Decimal {
	if r.multiplier.IsZero() {
		return DefaultBidIncreaseMultiplier
	}
	return r.multiplier
}

// SaleIndicators returns a copy of the normalized sale phrases.
func (r RuleSet) SaleIndicators() []string { return clone(r.sale) }

// UpsetBidIndicators returns a copy of the normalized upset-bid phrases.
func (r RuleSet) UpsetBidIndicators() []string { return clone(r.upsetBid) }

// OrderIndicators returns a copy of the normalized order phrases.
func (r RuleSet) OrderIndicators() []string { return clone(r.order) }

// InitiationIndicators returns a copy of the normalized initiation phrases.
func (r RuleSet) InitiationIndicators() []string { return clone(r.initiation) }

// ComplicationIndicators returns a copy of the normalized complication phrases.
func (r RuleSet) ComplicationIndicators() []string { return clone(r.complication) }

func clone(s []string) []string {
	return append([]string(nil), s...)
}

// isZero reports whether r was never built through NewRuleSet.
func (r RuleSet) isZero() bool {
	return r.sale == nil && r.upsetBid == nil && r.order == nil && r.initiation == nil && r.complication == nil
}

// orDefault substitutes the built-in rules for a zero RuleSet.
func (r RuleSet) orDefault() RuleSet {
	if r.isZero() {
		return DefaultRuleSet()
	}
	return r
}

package foreclosure

import "sort"

// Verdict reasons. These strings are part of the persisted record and the
// published classification events.
const (
	ReasonAuctionOccurred       = "auction occurred"
	ReasonSaleComplication      = "sale+complication"
	ReasonOrderNoSale           = "order, no sale"
	ReasonOrderComplication     = "order+complication"
	ReasonInitiatedNoOrder      = "initiated, no order"
	ReasonInitiatedComplication = "initiated+complication"
	ReasonNoKeyEvents           = "no key events found"
	ReasonDeadlineExpired       = "upset bid deadline expired"
	ReasonAIRecommendation      = "ai recommendation"
)

// Verdict is the classifier's output for one full event history.
type Verdict struct {
	Classification Classification `json:"classification"`
	Reason         string         `json:"reason"`
	// Matched lists the indicator phrases that fired, sorted.
	Matched []string `json:"matched,omitempty"`
}

// Ambiguous reports whether no indicator of any tier matched.
func (v Verdict) Ambiguous() bool {
	return v.Reason == ReasonNoKeyEvents
}

// Classifier derives a lifecycle classification from event types using a
// fixed RuleSet snapshot.
type Classifier struct {
	rules RuleSet
}

// NewClassifier returns a Classifier bound to rules. A zero RuleSet means
// the built-in defaults.
func NewClassifier(rules RuleSet) *Classifier {
	return &Classifier{rules: rules.orDefault()}
}

// Rules returns the snapshot the classifier was built with.
func (c *Classifier) Rules() RuleSet {
	return c.rules
}

// Classify maps an unordered collection of event types to a verdict. It is
// a pure function of its input: the same collection always produces the
// same verdict regardless of order.
//
// Decision order, first match wins:
//
//	sale       -> needs_review if complicated, else upset_bid
//	order      -> needs_review if complicated, else upcoming
//	initiation -> needs_review if complicated, else pending
//	otherwise  -> needs_review
func (c *Classifier) Classify(eventTypes []string) Verdict {
	var (
		hasSale, hasOrder, hasInit, hasComplication bool
		matched                                     []string
		seen                                        = make(map[string]struct{})
	)
	note := func(ind string) {
		if _, ok := seen[ind]; !ok {
			seen[ind] = struct{}{}
			matched = append(matched, ind)
		}
	}

	for _, et := range eventTypes {
		// An upset bid can only follow an auction, so it counts as sale evidence.
		if ind := matchAny(et, c.rules.sale); ind != "" {
			hasSale = true
			note(ind)
		} else if ind := matchAny(et, c.rules.upsetBid); ind != "" {
			hasSale = true
			note(ind)
		}
		if ind := matchAny(et, c.rules.order); ind != "" {
			hasOrder = true
			note(ind)
		}
		if ind := matchAny(et, c.rules.initiation); ind != "" {
			hasInit = true
			note(ind)
		}
		if ind := matchAny(et, c.rules.complication); ind != "" {
			hasComplication = true
			note(ind)
		}
	}

	v := Verdict{Matched: sortedCopy(matched)}
	switch {
	case hasSale && hasComplication:
		v.Classification, v.Reason = NeedsReview, ReasonSaleComplication
	case hasSale:
		v.Classification, v.Reason = UpsetBid, ReasonAuctionOccurred
	case hasOrder && hasComplication:
		v.Classification, v.Reason = NeedsReview, ReasonOrderComplication
	case hasOrder:
		v.Classification, v.Reason = Upcoming, ReasonOrderNoSale
	case hasInit && hasComplication:
		v.Classification, v.Reason = NeedsReview, ReasonInitiatedComplication
	case hasInit:
		v.Classification, v.Reason = Pending, ReasonInitiatedNoOrder
	default:
		v.Classification, v.Reason = NeedsReview, ReasonNoKeyEvents
	}
	return v
}

// ClassifyEvents classifies a full event history.
func (c *Classifier) ClassifyEvents(events []CaseEvent) Verdict {
	return c.Classify(EventTypes(events))
}

// sortedCopy returns matched sorted so the verdict does not depend on the
// order events arrived in.
func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

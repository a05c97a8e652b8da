package foreclosure

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ForeclosureWatch/pkg/errors"
	"github.com/turtacn/ForeclosureWatch/pkg/normalize"
)

// ErrCaseNotFound is returned by repositories for unknown case ids.
var ErrCaseNotFound = errors.New(errors.ErrCodeCaseNotFound, "case not found")

// Case is the engine-owned portion of a foreclosure case plus the recorded
// identity fields the reconciler compares against.
type Case struct {
	ID                   string         `json:"id"`
	CaseNumber           string         `json:"case_number"`
	County               string         `json:"county"`
	PropertyAddress      string         `json:"property_address,omitempty"`
	Defendants           []string       `json:"defendants,omitempty"`
	Classification       Classification `json:"classification"`
	ClassificationReason string         `json:"classification_reason,omitempty"`
	Ledger               Ledger         `json:"ledger"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	// Version is bumped on every save and used for optimistic concurrency.
	Version int64 `json:"version"`
}

// NewCase starts tracking a case. New cases begin in needs_review until the
// first classification pass runs.
func NewCase(caseNumber, county string, now time.Time) (*Case, error) {
	caseNumber = strings.TrimSpace(caseNumber)
	if caseNumber == "" {
		return nil, errors.InvalidParam("case number is required")
	}
	return &Case{
		ID:                   uuid.NewString(),
		CaseNumber:           caseNumber,
		County:               strings.TrimSpace(county),
		Classification:       NeedsReview,
		ClassificationReason: ReasonNoKeyEvents,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// CaseDetails are the identity fields the case page shows for a case.
type CaseDetails struct {
	PropertyAddress string   `json:"property_address,omitempty"`
	Defendants      []string `json:"defendants,omitempty"`
}

// MergeDetails records the page's identity fields on c. A non-blank address
// replaces the recorded one; defendants are added when no recorded name
// matches after normalization and are never removed. It reports whether
// anything changed.
func (c *Case) MergeDetails(d CaseDetails) bool {
	changed := false
	if addr := strings.TrimSpace(d.PropertyAddress); addr != "" && addr != c.PropertyAddress {
		c.PropertyAddress = addr
		changed = true
	}
	known := make(map[string]struct{}, len(c.Defendants))
	for _, name := range c.Defendants {
		known[normalize.Text(name)] = struct{}{}
	}
	for _, name := range d.Defendants {
		key := normalize.Text(name)
		if key == "" {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		c.Defendants = append(c.Defendants, strings.TrimSpace(name))
		changed = true
	}
	return changed
}

// Validate checks the invariants a persisted case must satisfy.
func (c *Case) Validate() error {
	if c.ID == "" {
		return errors.InvalidParam("case id is required")
	}
	if !c.Classification.Valid() {
		return ErrInvalidClassification.WithDetail("case=" + c.ID)
	}
	return c.Ledger.Validate()
}

// Transition records one applied classification change.
type Transition struct {
	ID     string         `json:"id"`
	CaseID string         `json:"case_id"`
	From   Classification `json:"from"`
	To     Classification `json:"to"`
	Reason string         `json:"reason"`
	Source Source         `json:"source"`
	At     time.Time      `json:"at"`
}

// Apply moves c to the decision's classification. It returns the recorded
// transition, or false when the decision leaves the classification as is.
// The reason is refreshed either way so it tracks the latest verdict.
func (c *Case) Apply(d Decision, reason string, src Source, at time.Time) (Transition, bool) {
	if d.Rejected {
		return Transition{}, false
	}
	if !d.Changed {
		if reason != "" && d.Classification == c.Classification {
			c.ClassificationReason = reason
		}
		return Transition{}, false
	}
	t := Transition{
		ID:     uuid.NewString(),
		CaseID: c.ID,
		From:   c.Classification,
		To:     d.Classification,
		Reason: reason,
		Source: src,
		At:     at,
	}
	c.Classification = d.Classification
	c.ClassificationReason = reason
	c.UpdatedAt = at
	return t, true
}

// Package reconcile diffs pushed configurations against the last
// accepted one and applies the difference in a fixed order.
package reconcile

import (
	"encoding/json"
	"sort"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/engine"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/segment"
	"github.com/ignite/segflow/internal/template"
	"github.com/ignite/segflow/internal/transaction"
)

// Document is one whole pushed configuration.
type Document struct {
	Templates     []template.Template       `json:"templates"`
	Segments      []segment.Segment         `json:"segments"`
	Campaigns     []campaign.Campaign       `json:"campaigns"`
	Transactions  []transaction.Transaction `json:"transactions"`
	EmailProvider *mailer.Provider          `json:"emailProvider,omitempty"`
}

// Validate applies the write-time checks a piecemeal ingress would; a
// violation aborts the whole push.
func (d *Document) Validate() error {
	seen := make(map[string]bool)
	for _, t := range d.Templates {
		if t.ID == "" {
			return engine.Validationf("template id must not be empty")
		}
		if seen["template/"+t.ID] {
			return engine.Validationf("duplicate template id %q", t.ID)
		}
		seen["template/"+t.ID] = true
	}
	segmentIDs := make(map[string]bool)
	for _, s := range d.Segments {
		if s.ID == "" {
			return engine.Validationf("segment id must not be empty")
		}
		if segmentIDs[s.ID] {
			return engine.Validationf("duplicate segment id %q", s.ID)
		}
		segmentIDs[s.ID] = true
		if err := segment.ValidateEvaluator(s.Evaluator); err != nil {
			return err
		}
	}
	for _, c := range d.Campaigns {
		if c.ID == "" {
			return engine.Validationf("campaign id must not be empty")
		}
		if len(c.Segments) == 0 {
			return engine.Validationf("campaign %s must include at least one segment", c.ID)
		}
		if !c.Behavior.Valid() {
			return engine.Validationf("campaign %s has unknown behavior %q", c.ID, c.Behavior)
		}
		if c.Flow == "" {
			return engine.Validationf("campaign %s is missing a flow", c.ID)
		}
		for _, segID := range append(append([]string{}, c.Segments...), c.ExcludeSegments...) {
			if !segmentIDs[segID] {
				return engine.Validationf("campaign %s references unknown segment %q", c.ID, segID)
			}
		}
	}
	for _, t := range d.Transactions {
		if t.ID == "" {
			return engine.Validationf("transaction id must not be empty")
		}
		if t.Event == "" {
			return engine.Validationf("transaction %s is missing an event name", t.ID)
		}
	}
	if d.EmailProvider != nil {
		if err := d.EmailProvider.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Payload comparisons for the diff. Campaign segment lists compare as
// sorted sets.

func templateEqual(a, b template.Template) bool {
	return a.Subject == b.Subject && a.HTML == b.HTML && a.Preamble == b.Preamble
}

func segmentEqual(a, b segment.Segment) bool {
	return a.Evaluator == b.Evaluator
}

func transactionEqual(a, b transaction.Transaction) bool {
	return a.Event == b.Event && a.Subject == b.Subject &&
		a.HTML == b.HTML && a.Preamble == b.Preamble
}

func campaignEqual(a, b campaign.Campaign) bool {
	return a.Flow == b.Flow && a.Behavior == b.Behavior &&
		sortedEqual(a.Segments, b.Segments) &&
		sortedEqual(a.ExcludeSegments, b.ExcludeSegments)
}

func providerEqual(a, b *mailer.Provider) bool {
	if a == nil || b == nil {
		return a == b
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}

func sortedEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string{}, a...)
	bs := append([]string{}, b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

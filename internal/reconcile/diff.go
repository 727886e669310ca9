package reconcile

import (
	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/segment"
	"github.com/ignite/segflow/internal/template"
	"github.com/ignite/segflow/internal/transaction"
)

// Plan is the operation set a push resolves to. Within each entity the
// applier runs deletes, then adds, then updates.
type Plan struct {
	DeleteTemplates []string
	AddTemplates    []template.Template
	UpdateTemplates []template.Template

	DeleteTransactions []string
	AddTransactions    []transaction.Transaction
	UpdateTransactions []transaction.Transaction

	DeleteSegments []string
	AddSegments    []segment.Segment
	UpdateSegments []segment.Segment

	DeleteCampaigns []string
	AddCampaigns    []campaign.Campaign
	UpdateCampaigns []campaign.Campaign

	// SetProvider is non-nil when the provider row must be rewritten.
	SetProvider *mailer.Provider
}

// Ops counts every operation in the plan.
func (p *Plan) Ops() int {
	n := len(p.DeleteTemplates) + len(p.AddTemplates) + len(p.UpdateTemplates) +
		len(p.DeleteTransactions) + len(p.AddTransactions) + len(p.UpdateTransactions) +
		len(p.DeleteSegments) + len(p.AddSegments) + len(p.UpdateSegments) +
		len(p.DeleteCampaigns) + len(p.AddCampaigns) + len(p.UpdateCampaigns)
	if p.SetProvider != nil {
		n++
	}
	return n
}

// Diff computes the keyed set difference between the last accepted
// configuration and the pushed one.
func Diff(old, new *Document) *Plan {
	plan := &Plan{}

	oldTemplates := make(map[string]template.Template)
	for _, t := range old.Templates {
		oldTemplates[t.ID] = t
	}
	newTemplates := make(map[string]bool)
	for _, t := range new.Templates {
		newTemplates[t.ID] = true
		prev, ok := oldTemplates[t.ID]
		switch {
		case !ok:
			plan.AddTemplates = append(plan.AddTemplates, t)
		case !templateEqual(prev, t):
			plan.UpdateTemplates = append(plan.UpdateTemplates, t)
		}
	}
	for _, t := range old.Templates {
		if !newTemplates[t.ID] {
			plan.DeleteTemplates = append(plan.DeleteTemplates, t.ID)
		}
	}

	oldTransactions := make(map[string]transaction.Transaction)
	for _, t := range old.Transactions {
		oldTransactions[t.ID] = t
	}
	newTransactions := make(map[string]bool)
	for _, t := range new.Transactions {
		newTransactions[t.ID] = true
		prev, ok := oldTransactions[t.ID]
		switch {
		case !ok:
			plan.AddTransactions = append(plan.AddTransactions, t)
		case !transactionEqual(prev, t):
			plan.UpdateTransactions = append(plan.UpdateTransactions, t)
		}
	}
	for _, t := range old.Transactions {
		if !newTransactions[t.ID] {
			plan.DeleteTransactions = append(plan.DeleteTransactions, t.ID)
		}
	}

	oldSegments := make(map[string]segment.Segment)
	for _, s := range old.Segments {
		oldSegments[s.ID] = s
	}
	newSegments := make(map[string]bool)
	for _, s := range new.Segments {
		newSegments[s.ID] = true
		prev, ok := oldSegments[s.ID]
		switch {
		case !ok:
			plan.AddSegments = append(plan.AddSegments, s)
		case !segmentEqual(prev, s):
			plan.UpdateSegments = append(plan.UpdateSegments, s)
		}
	}
	for _, s := range old.Segments {
		if !newSegments[s.ID] {
			plan.DeleteSegments = append(plan.DeleteSegments, s.ID)
		}
	}

	oldCampaigns := make(map[string]campaign.Campaign)
	for _, c := range old.Campaigns {
		oldCampaigns[c.ID] = c
	}
	newCampaigns := make(map[string]bool)
	for _, c := range new.Campaigns {
		newCampaigns[c.ID] = true
		prev, ok := oldCampaigns[c.ID]
		switch {
		case !ok:
			plan.AddCampaigns = append(plan.AddCampaigns, c)
		case !campaignEqual(prev, c):
			plan.UpdateCampaigns = append(plan.UpdateCampaigns, c)
		}
	}
	for _, c := range old.Campaigns {
		if !newCampaigns[c.ID] {
			plan.DeleteCampaigns = append(plan.DeleteCampaigns, c.ID)
		}
	}

	if new.EmailProvider != nil && !providerEqual(old.EmailProvider, new.EmailProvider) {
		plan.SetProvider = new.EmailProvider
	}

	return plan
}

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/mailer"
	"github.com/ignite/segflow/internal/segment"
	"github.com/ignite/segflow/internal/template"
	"github.com/ignite/segflow/internal/transaction"
)

func sampleDoc() *Document {
	return &Document{
		Templates: []template.Template{
			{ID: "welcome", Subject: `(user) => "Hi"`, HTML: "<p>Hi</p>"},
		},
		Segments: []segment.Segment{
			{ID: "all", Evaluator: "SELECT id FROM users"},
		},
		Campaigns: []campaign.Campaign{
			{ID: "c", Flow: "function*(ctx,rt){}", Behavior: campaign.BehaviorStatic, Segments: []string{"all"}},
		},
		Transactions: []transaction.Transaction{
			{ID: "purchase", Event: "purchase", Subject: "Order <%= event.id %>", HTML: "<p></p>"},
		},
		EmailProvider: &mailer.Provider{
			Config:      mailer.ProviderConfig{Name: "postmark", APIKey: "k"},
			FromAddress: "hello@x",
		},
	}
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	plan := Diff(sampleDoc(), sampleDoc())
	assert.Equal(t, 0, plan.Ops())
}

func TestDiffDetectsAdds(t *testing.T) {
	old := &Document{}
	plan := Diff(old, sampleDoc())

	assert.Len(t, plan.AddTemplates, 1)
	assert.Len(t, plan.AddSegments, 1)
	assert.Len(t, plan.AddCampaigns, 1)
	assert.Len(t, plan.AddTransactions, 1)
	assert.NotNil(t, plan.SetProvider)
	assert.Equal(t, 5, plan.Ops())
}

func TestDiffDetectsDeletes(t *testing.T) {
	plan := Diff(sampleDoc(), &Document{})

	assert.Equal(t, []string{"welcome"}, plan.DeleteTemplates)
	assert.Equal(t, []string{"all"}, plan.DeleteSegments)
	assert.Equal(t, []string{"c"}, plan.DeleteCampaigns)
	assert.Equal(t, []string{"purchase"}, plan.DeleteTransactions)
	// An absent provider in the push leaves the singleton untouched.
	assert.Nil(t, plan.SetProvider)
}

func TestDiffDetectsUpdates(t *testing.T) {
	newDoc := sampleDoc()
	newDoc.Templates[0].HTML = "<p>Hello</p>"
	newDoc.Segments[0].Evaluator = "SELECT id FROM users WHERE 1=1"

	plan := Diff(sampleDoc(), newDoc)
	assert.Len(t, plan.UpdateTemplates, 1)
	assert.Len(t, plan.UpdateSegments, 1)
	assert.Empty(t, plan.UpdateCampaigns)
}

func TestDiffCampaignSegmentOrderIrrelevant(t *testing.T) {
	old := sampleDoc()
	old.Campaigns[0].Segments = []string{"a", "b"}
	newDoc := sampleDoc()
	newDoc.Campaigns[0].Segments = []string{"b", "a"}

	plan := Diff(old, newDoc)
	assert.Empty(t, plan.UpdateCampaigns)
}

func TestDiffCampaignFlowChangeIsUpdate(t *testing.T) {
	newDoc := sampleDoc()
	newDoc.Campaigns[0].Flow = "function*(ctx,rt){ yield rt.sendEmail('welcome'); }"

	plan := Diff(sampleDoc(), newDoc)
	assert.Len(t, plan.UpdateCampaigns, 1)
}

func TestDiffProviderChange(t *testing.T) {
	newDoc := sampleDoc()
	newDoc.EmailProvider = &mailer.Provider{
		Config: mailer.ProviderConfig{
			Name: "ses", AccessKeyID: "a", SecretAccessKey: "s", Region: "us-east-1",
		},
		FromAddress: "hello@x",
	}

	plan := Diff(sampleDoc(), newDoc)
	assert.NotNil(t, plan.SetProvider)
	assert.Equal(t, "ses", plan.SetProvider.Config.Name)
}

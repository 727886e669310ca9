package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/segflow/internal/campaign"
	"github.com/ignite/segflow/internal/segment"
)

func TestDocumentValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Document)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(d *Document) {},
		},
		{
			name: "empty template id",
			mutate: func(d *Document) {
				d.Templates[0].ID = ""
			},
			wantErr: "template id",
		},
		{
			name: "duplicate segment",
			mutate: func(d *Document) {
				d.Segments = append(d.Segments, d.Segments[0])
			},
			wantErr: "duplicate segment",
		},
		{
			name: "empty evaluator",
			mutate: func(d *Document) {
				d.Segments[0].Evaluator = ""
			},
			wantErr: "must not be empty",
		},
		{
			name: "campaign without includes",
			mutate: func(d *Document) {
				d.Campaigns[0].Segments = nil
			},
			wantErr: "at least one segment",
		},
		{
			name: "campaign with unknown behavior",
			mutate: func(d *Document) {
				d.Campaigns[0].Behavior = campaign.Behavior("sometimes")
			},
			wantErr: "unknown behavior",
		},
		{
			name: "campaign referencing unknown segment",
			mutate: func(d *Document) {
				d.Campaigns[0].ExcludeSegments = []string{"ghost"}
			},
			wantErr: "unknown segment",
		},
		{
			name: "campaign without flow",
			mutate: func(d *Document) {
				d.Campaigns[0].Flow = ""
			},
			wantErr: "missing a flow",
		},
		{
			name: "transaction without event",
			mutate: func(d *Document) {
				d.Transactions[0].Event = ""
			},
			wantErr: "missing an event",
		},
		{
			name: "provider missing key",
			mutate: func(d *Document) {
				d.EmailProvider.Config.APIKey = ""
			},
			wantErr: "apiKey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDoc()
			tt.mutate(doc)
			err := doc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSegmentEvaluatorComparedVerbatim(t *testing.T) {
	a := segment.Segment{ID: "s", Evaluator: "SELECT id FROM users"}
	b := segment.Segment{ID: "s", Evaluator: "select id from users"}
	assert.False(t, segmentEqual(a, b))
}

package campaign

// Behavior selects the membership policy for a campaign.
type Behavior string

const (
	// BehaviorStatic keeps every enrolled user until the campaign or
	// user is deleted.
	BehaviorStatic Behavior = "static"
	// BehaviorDynamic keeps membership equal to the match predicate and
	// terminates executions of users who stop matching.
	BehaviorDynamic Behavior = "dynamic"
)

// Valid reports whether b is a known behavior.
func (b Behavior) Valid() bool {
	return b == BehaviorStatic || b == BehaviorDynamic
}

// Campaign is a multi-step flow over a membership population.
type Campaign struct {
	ID              string   `json:"id"`
	Flow            string   `json:"flow"`
	Behavior        Behavior `json:"behavior"`
	Segments        []string `json:"segments"`
	ExcludeSegments []string `json:"excludeSegments"`
}

// MembershipChange records one add or remove produced by reevaluation.
type MembershipChange struct {
	UserID     string `json:"userId"`
	CampaignID string `json:"campaignId"`
}

// Changes aggregates membership changes across campaigns.
type Changes struct {
	Added   []MembershipChange `json:"added"`
	Removed []MembershipChange `json:"removed"`
}

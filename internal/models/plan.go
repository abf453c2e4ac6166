package models

// PlanTier is a billing plan level. The mapping from tier to capabilities
// is static; billing subscription management happens upstream in Shopify.
type PlanTier string

const (
	PlanTrial     PlanTier = "trial"
	PlanBasic     PlanTier = "basic"
	PlanPro       PlanTier = "pro"
	PlanUnlimited PlanTier = "unlimited"
)

// PlanLimits are the capabilities a plan tier grants.
type PlanLimits struct {
	// MaxActiveAuctions caps concurrently running auctions. 0 means no cap.
	MaxActiveAuctions int
	BuyNow            bool
	Relist            bool
}

var planLimits = map[PlanTier]PlanLimits{
	PlanTrial:     {MaxActiveAuctions: 3},
	PlanBasic:     {MaxActiveAuctions: 10, BuyNow: true},
	PlanPro:       {MaxActiveAuctions: 50, BuyNow: true, Relist: true},
	PlanUnlimited: {BuyNow: true, Relist: true},
}

// LimitsFor returns the capabilities for a tier. Unknown tiers fall back
// to trial limits.
func LimitsFor(tier PlanTier) PlanLimits {
	if l, ok := planLimits[tier]; ok {
		return l
	}
	return planLimits[PlanTrial]
}

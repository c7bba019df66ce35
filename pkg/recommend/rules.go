package recommend

import (
	"time"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// Rule is one mitigation template for a failure category. Impact is
// the fraction of failures in the category the action is expected to
// avoid; feasibility discounts actions that are expensive or slow to
// roll out.
type Rule struct {
	Title           string
	ActionText      string
	EstimatedImpact float64
	Feasibility     float64
	CostEstimateINR float64
	Timeline        time.Duration

	// MinSeverity gates templates that only pay off once the problem
	// is serious enough. Empty means always applicable.
	MinSeverity domain.Severity
}

func severityAtLeast(have, min domain.Severity) bool {
	if min == "" {
		return true
	}
	return have.Weight() >= min.Weight()
}

const week = 7 * 24 * time.Hour

// defaultRules maps each failure category to its mitigation playbook,
// strongest expected impact first.
func defaultRules() map[domain.FailureCategory][]Rule {
	return map[domain.FailureCategory][]Rule{
		domain.CategoryAddressInvalid: {
			{
				Title:           "Deploy address validation at order capture",
				ActionText:      "Validate pincode and address line against the postal database before accepting the order, and prompt the customer to correct unresolvable addresses.",
				EstimatedImpact: 0.6, Feasibility: 0.8,
				CostEstimateINR: 250000, Timeline: 4 * week,
			},
			{
				Title:           "Confirm addresses by call before dispatch",
				ActionText:      "Queue orders with low-confidence addresses for a confirmation call ahead of dispatch instead of discovering the problem on the route.",
				EstimatedImpact: 0.4, Feasibility: 0.9,
				CostEstimateINR: 60000, Timeline: 1 * week,
			},
		},
		domain.CategoryCustomerUnavailable: {
			{
				Title:           "Offer delivery time-window selection",
				ActionText:      "Let customers pick a delivery window at checkout and schedule routes against the chosen windows.",
				EstimatedImpact: 0.5, Feasibility: 0.6,
				CostEstimateINR: 400000, Timeline: 6 * week,
			},
			{
				Title:           "Send pre-delivery notifications",
				ActionText:      "Notify the customer thirty minutes before arrival with an option to reschedule, cutting doorstep no-shows.",
				EstimatedImpact: 0.35, Feasibility: 0.95,
				CostEstimateINR: 40000, Timeline: 1 * week,
			},
		},
		domain.CategoryWeather: {
			{
				Title:           "Weather-aware route planning",
				ActionText:      "Feed the weather forecast into route planning and re-sequence or defer stops in affected areas before drivers depart.",
				EstimatedImpact: 0.45, Feasibility: 0.7,
				CostEstimateINR: 300000, Timeline: 5 * week,
			},
			{
				Title:           "Adjust delivery promises during weather alerts",
				ActionText:      "Widen promised delivery windows automatically while a weather alert is active so commitments stay realistic.",
				EstimatedImpact: 0.3, Feasibility: 0.9,
				CostEstimateINR: 50000, Timeline: 2 * week,
			},
		},
		domain.CategoryTraffic: {
			{
				Title:           "Traffic-aware dispatch scheduling",
				ActionText:      "Pull live traffic conditions into dispatch and shift departures off congested windows on affected routes.",
				EstimatedImpact: 0.5, Feasibility: 0.75,
				CostEstimateINR: 280000, Timeline: 4 * week,
			},
			{
				Title:           "Stagger dispatch around peak congestion",
				ActionText:      "Move scheduled dispatch windows for recurring-congestion routes outside peak hours.",
				EstimatedImpact: 0.3, Feasibility: 0.9,
				CostEstimateINR: 30000, Timeline: 1 * week,
			},
		},
		domain.CategoryWarehouseDelay: {
			{
				Title:           "Audit warehouse picking process",
				ActionText:      "Review picking-to-dispatch timings at the affected warehouse and rebalance staffing against order volume.",
				EstimatedImpact: 0.4, Feasibility: 0.8,
				CostEstimateINR: 120000, Timeline: 3 * week,
			},
			{
				Title:           "Alert on dispatch-time overruns",
				ActionText:      "Raise an operational alert when picking-to-dispatch time exceeds threshold so delays surface the same shift.",
				EstimatedImpact: 0.25, Feasibility: 0.95,
				CostEstimateINR: 25000, Timeline: 1 * week,
			},
		},
		domain.CategoryFleetBreakdown: {
			{
				Title:           "Preventive fleet maintenance schedule",
				ActionText:      "Move breakdown-prone vehicles onto a mileage-based preventive maintenance cycle.",
				EstimatedImpact: 0.55, Feasibility: 0.7,
				CostEstimateINR: 500000, Timeline: 8 * week,
			},
			{
				Title:           "Maintain a standby vehicle pool",
				ActionText:      "Keep standby vehicles at high-volume hubs so a breakdown swaps the vehicle instead of failing the route.",
				EstimatedImpact: 0.45, Feasibility: 0.5,
				CostEstimateINR: 900000, Timeline: 6 * week,
				MinSeverity:     domain.SeverityCritical,
			},
		},
		domain.CategoryStockout: {
			{
				Title:           "Review inventory reorder points",
				ActionText:      "Recompute reorder points for SKUs involved in stockout-driven failures against recent demand.",
				EstimatedImpact: 0.5, Feasibility: 0.85,
				CostEstimateINR: 80000, Timeline: 2 * week,
			},
			{
				Title:           "Add safety stock for high-velocity SKUs",
				ActionText:      "Carry safety stock at regional warehouses for the SKUs that most often fail on availability.",
				EstimatedImpact: 0.35, Feasibility: 0.6,
				CostEstimateINR: 350000, Timeline: 4 * week,
			},
		},
		domain.CategoryOperational: {
			{
				Title:           "Run an operational review of recurring failures",
				ActionText:      "Walk the evidence trail with the regional operations team and assign owners for the systemic issues it surfaces.",
				EstimatedImpact: 0.3, Feasibility: 0.9,
				CostEstimateINR: 20000, Timeline: 1 * week,
			},
		},
	}
}

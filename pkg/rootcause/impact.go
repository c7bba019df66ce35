package rootcause

import "github.com/causewaylabs/causeway/pkg/domain"

// impactTable estimates the business cost of each failure category.
// Costs are per-incident figures in INR; satisfaction delta is the
// expected rating movement; efficiency loss is fleet/warehouse
// throughput lost per incident.
var impactTable = map[domain.FailureCategory]domain.BusinessImpact{
	domain.CategoryAddressInvalid:      {CostPerIncidentINR: 450, SatisfactionDelta: -0.8, EfficiencyLossPct: 2.5},
	domain.CategoryCustomerUnavailable: {CostPerIncidentINR: 350, SatisfactionDelta: -0.5, EfficiencyLossPct: 1.8},
	domain.CategoryWeather:             {CostPerIncidentINR: 600, SatisfactionDelta: -0.3, EfficiencyLossPct: 4.0},
	domain.CategoryTraffic:             {CostPerIncidentINR: 520, SatisfactionDelta: -0.4, EfficiencyLossPct: 3.5},
	domain.CategoryWarehouseDelay:      {CostPerIncidentINR: 380, SatisfactionDelta: -0.4, EfficiencyLossPct: 2.2},
	domain.CategoryFleetBreakdown:      {CostPerIncidentINR: 750, SatisfactionDelta: -0.6, EfficiencyLossPct: 5.0},
	domain.CategoryStockout:            {CostPerIncidentINR: 400, SatisfactionDelta: -0.7, EfficiencyLossPct: 2.0},
	domain.CategoryOperational:         {CostPerIncidentINR: 300, SatisfactionDelta: -0.3, EfficiencyLossPct: 1.5},
}

// ImpactFor returns the business impact estimate for a category
func ImpactFor(cat domain.FailureCategory) *domain.BusinessImpact {
	if impact, ok := impactTable[cat]; ok {
		out := impact
		return &out
	}
	fallback := impactTable[domain.CategoryOperational]
	return &fallback
}

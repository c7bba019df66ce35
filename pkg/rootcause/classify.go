package rootcause

import (
	"fmt"
	"strings"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// categoryForEvent classifies a correlated counterpart event as a
// candidate failure category. Order and feedback events are downstream
// effects, not causes, and never classify.
func categoryForEvent(evt *domain.Event) (domain.FailureCategory, string, bool) {
	switch evt.Type {
	case domain.EventTypeExternal:
		if evt.External == nil {
			return "", "", false
		}
		if evt.External.TrafficCondition == "Heavy" {
			return domain.CategoryTraffic, "heavy traffic conditions in the delivery area", true
		}
		switch evt.External.WeatherCondition {
		case "Rain", "Storm", "Fog":
			return domain.CategoryWeather,
				fmt.Sprintf("adverse weather (%s) in the delivery area", strings.ToLower(evt.External.WeatherCondition)), true
		}
		switch evt.External.EventType {
		case "Strike", "Festival", "Holiday":
			return domain.CategoryOperational,
				fmt.Sprintf("external disruption (%s)", strings.ToLower(evt.External.EventType)), true
		}
		return "", "", false

	case domain.EventTypeFleet:
		if evt.Fleet == nil {
			return "", "", false
		}
		if evt.Fleet.BreakdownFlag {
			return domain.CategoryFleetBreakdown, "vehicle breakdown on the delivery route", true
		}
		if evt.Fleet.DelayedMinutes > 30 {
			return domain.CategoryOperational,
				fmt.Sprintf("fleet delay of %d minutes on route", evt.Fleet.DelayedMinutes), true
		}
		return "", "", false

	case domain.EventTypeWarehouse:
		if evt.Warehouse == nil {
			return "", "", false
		}
		if evt.Warehouse.StockoutFlag {
			return domain.CategoryStockout, "stockout at the dispatching warehouse", true
		}
		if evt.Warehouse.DelayedMinute > 30 {
			return domain.CategoryWarehouseDelay,
				fmt.Sprintf("dispatch delayed %d minutes at the warehouse", evt.Warehouse.DelayedMinute), true
		}
		return "", "", false
	}
	return "", "", false
}

// categoryForReason maps the failure reason recorded on the order
// itself. These come from driver notes and are trusted less than
// correlated evidence.
func categoryForReason(reason string) (domain.FailureCategory, string, bool) {
	switch {
	case strings.EqualFold(reason, "Address not found"):
		return domain.CategoryAddressInvalid, "delivery address could not be located", true
	case strings.EqualFold(reason, "Customer not available"):
		return domain.CategoryCustomerUnavailable, "customer unavailable at delivery time", true
	case strings.EqualFold(reason, "Weather delay"):
		return domain.CategoryWeather, "weather delay reported by the driver", true
	case strings.EqualFold(reason, "Traffic congestion") || strings.EqualFold(reason, "Traffic"):
		return domain.CategoryTraffic, "traffic congestion reported by the driver", true
	case strings.EqualFold(reason, "Warehouse delay"):
		return domain.CategoryWarehouseDelay, "late handoff from the warehouse", true
	case reason != "":
		return domain.CategoryOperational, "unclassified failure reason: " + reason, true
	}
	return "", "", false
}

package normalizer

import (
	"time"

	"github.com/causewaylabs/causeway/pkg/domain"
)

// Registered schema identifiers, matching the source data feeds
const (
	SchemaOrders          = "orders"
	SchemaFleetLogs       = "fleet_logs"
	SchemaWarehouseLogs   = "warehouse_logs"
	SchemaExternalFactors = "external_factors"
	SchemaFeedback        = "feedback"
)

func location(rec *RawRecord) domain.Location {
	loc := domain.Location{}
	if lat, ok := rec.floatField("latitude"); ok {
		loc.Latitude = lat
	}
	if lon, ok := rec.floatField("longitude"); ok {
		loc.Longitude = lon
	}
	if city, ok := rec.stringField("city"); ok {
		loc.City = city
	}
	if state, ok := rec.stringField("state"); ok {
		loc.State = state
	}
	return loc
}

func timePtr(rec *RawRecord, field string) *time.Time {
	if ts, ok := rec.timeField(field); ok {
		return &ts
	}
	return nil
}

func normalizeOrder(rec *RawRecord, evt *domain.Event) error {
	orderID, ok := rec.stringField("order_id")
	if !ok {
		return ErrMissingField(rec.SchemaID, "order_id")
	}
	ts, ok := rec.timeField("order_date")
	if !ok {
		return ErrMissingField(rec.SchemaID, "order_date")
	}
	status, ok := rec.stringField("status")
	if !ok {
		return ErrMissingField(rec.SchemaID, "status")
	}

	evt.Type = domain.EventTypeOrder
	evt.Timestamp = ts
	evt.Location = location(rec)
	evt.Entities = []domain.EntityRef{{Kind: "order", ID: orderID}}
	if clientID, ok := rec.stringField("client_id"); ok {
		evt.Entities = append(evt.Entities, domain.EntityRef{Kind: "client", ID: clientID})
	}

	data := &domain.OrderData{
		Status:           status,
		PromisedDelivery: timePtr(rec, "promised_delivery_date"),
		ActualDelivery:   timePtr(rec, "actual_delivery_date"),
	}
	if reason, ok := rec.stringField("failure_reason"); ok {
		data.FailureReason = reason
	}
	if addr, ok := rec.stringField("delivery_address_line"); ok {
		data.AddressLine = addr
	}
	if pin, ok := rec.stringField("delivery_address_pincode"); ok {
		data.Pincode = pin
	}
	if amount, ok := rec.floatField("amount"); ok {
		data.AmountINR = amount
	}
	evt.Order = data
	return nil
}

func normalizeFleet(rec *RawRecord, evt *domain.Event) error {
	driverID, ok := rec.stringField("driver_id")
	if !ok {
		return ErrMissingField(rec.SchemaID, "driver_id")
	}
	ts, ok := rec.timeField("log_time")
	if !ok {
		return ErrMissingField(rec.SchemaID, "log_time")
	}

	evt.Type = domain.EventTypeFleet
	evt.Timestamp = ts
	evt.Location = location(rec)
	evt.Entities = []domain.EntityRef{{Kind: "driver", ID: driverID}}
	if orderID, ok := rec.stringField("order_id"); ok {
		evt.Entities = append(evt.Entities, domain.EntityRef{Kind: "order", ID: orderID})
	}
	if route, ok := rec.stringField("route_code"); ok {
		evt.Entities = append(evt.Entities, domain.EntityRef{Kind: "route", ID: route})
	}

	data := &domain.FleetData{
		DepartureTime: timePtr(rec, "departure_time"),
		ArrivalTime:   timePtr(rec, "arrival_time"),
	}
	if vn, ok := rec.stringField("vehicle_number"); ok {
		data.VehicleNumber = vn
	}
	if route, ok := rec.stringField("route_code"); ok {
		data.RouteCode = route
	}
	if notes, ok := rec.stringField("gps_delay_notes"); ok {
		data.GPSDelayNotes = notes
	}
	if breakdown, ok := rec.boolField("breakdown"); ok {
		data.BreakdownFlag = breakdown
	}
	if mins, ok := rec.intField("delayed_minutes"); ok {
		data.DelayedMinutes = mins
	}
	evt.Fleet = data
	return nil
}

func normalizeWarehouse(rec *RawRecord, evt *domain.Event) error {
	warehouseID, ok := rec.stringField("warehouse_id")
	if !ok {
		return ErrMissingField(rec.SchemaID, "warehouse_id")
	}
	ts, ok := rec.timeField("log_time")
	if !ok {
		return ErrMissingField(rec.SchemaID, "log_time")
	}

	evt.Type = domain.EventTypeWarehouse
	evt.Timestamp = ts
	evt.Location = location(rec)
	evt.Entities = []domain.EntityRef{{Kind: "warehouse", ID: warehouseID}}
	if orderID, ok := rec.stringField("order_id"); ok {
		evt.Entities = append(evt.Entities, domain.EntityRef{Kind: "order", ID: orderID})
	}

	data := &domain.WarehouseData{
		PickingStart: timePtr(rec, "picking_start"),
		PickingEnd:   timePtr(rec, "picking_end"),
		DispatchTime: timePtr(rec, "dispatch_time"),
	}
	if notes, ok := rec.stringField("notes"); ok {
		data.Notes = notes
	}
	if stockout, ok := rec.boolField("stockout"); ok {
		data.StockoutFlag = stockout
	}
	if mins, ok := rec.intField("delayed_minutes"); ok {
		data.DelayedMinute = mins
	}
	evt.Warehouse = data
	return nil
}

func normalizeExternal(rec *RawRecord, evt *domain.Event) error {
	factorID, ok := rec.stringField("factor_id")
	if !ok {
		return ErrMissingField(rec.SchemaID, "factor_id")
	}
	ts, ok := rec.timeField("recorded_at")
	if !ok {
		return ErrMissingField(rec.SchemaID, "recorded_at")
	}

	evt.Type = domain.EventTypeExternal
	evt.Timestamp = ts
	evt.Location = location(rec)
	evt.Entities = []domain.EntityRef{{Kind: "factor", ID: factorID}}

	data := &domain.ExternalData{}
	if traffic, ok := rec.stringField("traffic_condition"); ok {
		data.TrafficCondition = traffic
	}
	if weather, ok := rec.stringField("weather_condition"); ok {
		data.WeatherCondition = weather
	}
	if et, ok := rec.stringField("event_type"); ok {
		data.EventType = et
	}
	evt.External = data
	return nil
}

func normalizeFeedback(rec *RawRecord, evt *domain.Event) error {
	orderID, ok := rec.stringField("order_id")
	if !ok {
		return ErrMissingField(rec.SchemaID, "order_id")
	}
	ts, ok := rec.timeField("created_at")
	if !ok {
		return ErrMissingField(rec.SchemaID, "created_at")
	}

	evt.Type = domain.EventTypeFeedback
	evt.Timestamp = ts
	evt.Location = location(rec)
	evt.Entities = []domain.EntityRef{{Kind: "order", ID: orderID}}

	data := &domain.FeedbackData{}
	if rating, ok := rec.intField("rating"); ok {
		data.Rating = rating
	}
	if sentiment, ok := rec.stringField("sentiment"); ok {
		data.Sentiment = sentiment
	}
	if comment, ok := rec.stringField("comment"); ok {
		data.Comment = comment
	}
	evt.Feedback = data
	return nil
}

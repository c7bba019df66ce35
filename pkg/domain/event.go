package domain

import (
	"fmt"
	"math"
	"time"
)

// EventType identifies the source domain of a normalized event
type EventType string

const (
	EventTypeOrder     EventType = "order"
	EventTypeFleet     EventType = "fleet"
	EventTypeWarehouse EventType = "warehouse"
	EventTypeExternal  EventType = "external"
	EventTypeFeedback  EventType = "feedback"
)

// Valid reports whether the event type is one of the known source domains
func (t EventType) Valid() bool {
	switch t {
	case EventTypeOrder, EventTypeFleet, EventTypeWarehouse, EventTypeExternal, EventTypeFeedback:
		return true
	}
	return false
}

// EntityRef identifies a business entity referenced by an event
type EntityRef struct {
	Kind string `json:"kind" yaml:"kind"` // "order", "driver", "warehouse", "client", "route"
	ID   string `json:"id" yaml:"id"`
}

// Key returns the canonical lookup key for the reference
func (r EntityRef) Key() string {
	return r.Kind + ":" + r.ID
}

// Location is a geographic position. Either coordinates or city/state
// may be set; HasCoordinates distinguishes the two.
type Location struct {
	Latitude  float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	City      string  `json:"city,omitempty" yaml:"city,omitempty"`
	State     string  `json:"state,omitempty" yaml:"state,omitempty"`
}

// HasCoordinates reports whether lat/lon are populated
func (l Location) HasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

const earthRadiusKM = 6371.0

// DistanceKM returns the haversine distance to another location in
// kilometers. Returns -1 when either side lacks coordinates.
func (l Location) DistanceKM(other Location) float64 {
	if !l.HasCoordinates() || !other.HasCoordinates() {
		return -1
	}

	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// SameCity reports whether both locations name the same city
func (l Location) SameCity(other Location) bool {
	return l.City != "" && l.City == other.City
}

// Event is a normalized record of something that happened in the
// delivery network. Events are immutable once created; downstream
// stages hold read-only references by ID.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	IngestedAt time.Time   `json:"ingested_at"`
	Location   Location    `json:"location"`
	Entities   []EntityRef `json:"entities"`

	// Exactly one payload member is set, matching Type
	Order     *OrderData     `json:"order,omitempty"`
	Fleet     *FleetData     `json:"fleet,omitempty"`
	Warehouse *WarehouseData `json:"warehouse,omitempty"`
	External  *ExternalData  `json:"external,omitempty"`
	Feedback  *FeedbackData  `json:"feedback,omitempty"`
}

// OrderData is the payload for order lifecycle events
type OrderData struct {
	Status           string     `json:"status"` // "Pending", "In-Transit", "Delivered", "Failed"
	FailureReason    string     `json:"failure_reason,omitempty"`
	PromisedDelivery *time.Time `json:"promised_delivery,omitempty"`
	ActualDelivery   *time.Time `json:"actual_delivery,omitempty"`
	AddressLine      string     `json:"address_line,omitempty"`
	Pincode          string     `json:"pincode,omitempty"`
	AmountINR        float64    `json:"amount_inr,omitempty"`
}

// FleetData is the payload for fleet log events
type FleetData struct {
	VehicleNumber  string     `json:"vehicle_number,omitempty"`
	RouteCode      string     `json:"route_code,omitempty"`
	DepartureTime  *time.Time `json:"departure_time,omitempty"`
	ArrivalTime    *time.Time `json:"arrival_time,omitempty"`
	GPSDelayNotes  string     `json:"gps_delay_notes,omitempty"`
	BreakdownFlag  bool       `json:"breakdown_flag,omitempty"`
	DelayedMinutes int        `json:"delayed_minutes,omitempty"`
}

// WarehouseData is the payload for warehouse log events
type WarehouseData struct {
	PickingStart  *time.Time `json:"picking_start,omitempty"`
	PickingEnd    *time.Time `json:"picking_end,omitempty"`
	DispatchTime  *time.Time `json:"dispatch_time,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	StockoutFlag  bool       `json:"stockout_flag,omitempty"`
	DelayedMinute int        `json:"delayed_minutes,omitempty"`
}

// ExternalData is the payload for external factor events (weather,
// traffic, strikes, holidays)
type ExternalData struct {
	TrafficCondition string `json:"traffic_condition,omitempty"` // "Light", "Moderate", "Heavy"
	WeatherCondition string `json:"weather_condition,omitempty"` // "Clear", "Rain", "Fog", "Storm"
	EventType        string `json:"event_type,omitempty"`        // "Strike", "Holiday", "Festival"
}

// FeedbackData is the payload for customer feedback events
type FeedbackData struct {
	Rating    int    `json:"rating,omitempty"`
	Sentiment string `json:"sentiment,omitempty"` // "Positive", "Neutral", "Negative"
	Comment   string `json:"comment,omitempty"`
}

// Validate checks structural invariants on a normalized event
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}
	if len(e.Entities) == 0 {
		return fmt.Errorf("event must reference at least one entity")
	}
	return nil
}

// HasEntity reports whether the event references the given entity
func (e *Event) HasEntity(ref EntityRef) bool {
	for _, er := range e.Entities {
		if er == ref {
			return true
		}
	}
	return false
}

// SharedEntities returns entity references present on both events
func (e *Event) SharedEntities(other *Event) []EntityRef {
	var shared []EntityRef
	for _, er := range e.Entities {
		if other.HasEntity(er) {
			shared = append(shared, er)
		}
	}
	return shared
}

// IsFailure reports whether the event represents a delivery failure
func (e *Event) IsFailure() bool {
	switch e.Type {
	case EventTypeOrder:
		return e.Order != nil && e.Order.Status == "Failed"
	case EventTypeFleet:
		return e.Fleet != nil && e.Fleet.BreakdownFlag
	case EventTypeWarehouse:
		return e.Warehouse != nil && e.Warehouse.StockoutFlag
	}
	return false
}

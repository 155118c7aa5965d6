// Package gateway defines the boundary to the order and execution
// management system: entity notifications in, trading requests out.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrTimeout       = errors.New("request timed out")
	ErrClosed        = errors.New("gateway closed")
	ErrOrderNotFound = errors.New("order not found")
	ErrRouteNotFound = errors.New("route not found")
)

type Category string

const (
	CategoryOrder Category = "order"
	CategoryRoute Category = "route"
)

type NotificationType string

const (
	TypeNew          NotificationType = "NEW"
	TypeInitialPaint NotificationType = "INITIAL_PAINT"
	TypeUpdate       NotificationType = "UPDATE"
	TypeDelete       NotificationType = "DELETE"
)

// Entity fields used by the engine.
const (
	FieldSequence        = "EMSX_SEQUENCE"
	FieldRouteID         = "EMSX_ROUTE_ID"
	FieldStatus          = "EMSX_STATUS"
	FieldTicker          = "EMSX_TICKER"
	FieldAmount          = "EMSX_AMOUNT"
	FieldFilled          = "EMSX_FILLED"
	FieldSide            = "EMSX_SIDE"
	FieldNotes           = "EMSX_NOTES"
	FieldBroker          = "EMSX_BROKER"
	FieldOrderType       = "EMSX_ORDER_TYPE"
	FieldTIF             = "EMSX_TIF"
	FieldHandInstruction = "EMSX_HAND_INSTRUCTION"
)

// Order and route statuses.
const (
	StatusNew      = "NEW"
	StatusWorking  = "WORKING"
	StatusPartFill = "PARTFILL"
	StatusFilled   = "FILLED"
	StatusCancel   = "CANCEL"
	StatusRejected = "REJECTED"
	StatusExpired  = "EXPIRED"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// OppositeSide returns the side that offsets side.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}

// IsTerminal reports whether status ends the entity's lifecycle.
func IsTerminal(status string) bool {
	switch status {
	case StatusFilled, StatusCancel, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Entity is a snapshot of an order or route and its fields.
type Entity struct {
	Category Category          `json:"category"`
	Sequence int64             `json:"sequence"`
	RouteID  int64             `json:"route_id,omitempty"`
	Fields   map[string]string `json:"fields"`
}

// Field returns the named field, or "" if the entity does not carry it.
func (e Entity) Field(name string) string {
	return e.Fields[name]
}

// Key identifies the entity: "order 123" or "route 123.1".
func (e Entity) Key() string {
	if e.Category == CategoryRoute {
		return RouteKey(e.Sequence, e.RouteID)
	}
	return OrderKey(e.Sequence)
}

func OrderKey(sequence int64) string {
	return "order " + strconv.FormatInt(sequence, 10)
}

func RouteKey(sequence, routeID int64) string {
	return fmt.Sprintf("route %d.%d", sequence, routeID)
}

type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Notification reports a lifecycle event for one entity.
type Notification struct {
	Category Category         `json:"category"`
	Type     NotificationType `json:"type"`
	Entity   Entity           `json:"entity"`
	Changes  []FieldChange    `json:"changes,omitempty"`
}

// Changed reports whether the notification carries a change to field.
func (n Notification) Changed(field string) bool {
	for _, c := range n.Changes {
		if c.Field == field {
			return true
		}
	}
	return false
}

// Request operations.
const (
	OpRouteEx               = "RouteEx"
	OpCreateOrderAndRouteEx = "CreateOrderAndRouteEx"
)

type StrategyField struct {
	Data      string `json:"data"`
	Indicator int    `json:"indicator"`
}

// Strategy carries broker algorithm parameters for a route.
type Strategy struct {
	Name   string          `json:"name"`
	Fields []StrategyField `json:"fields"`
}

type Request struct {
	ID        string            `json:"id"`
	Operation string            `json:"operation"`
	Fields    map[string]string `json:"fields"`
	Strategy  *Strategy         `json:"strategy,omitempty"`
}

// Response is the venue's answer to a Request. A non-zero ErrorCode
// means the request was rejected.
type Response struct {
	Operation    string            `json:"operation"`
	Fields       map[string]string `json:"fields,omitempty"`
	ErrorCode    int               `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

func (r Response) Failed() bool {
	return r.ErrorCode != 0
}

// Submitter sends a Request and waits for its Response. The error return
// is reserved for transport failures and ctx expiry (ErrTimeout).
type Submitter interface {
	Submit(ctx context.Context, req Request) (Response, error)
}

// EntityLookup finds the current state of an order by sequence.
type EntityLookup interface {
	Order(sequence int64) (Entity, bool)
}

type Handler func(Notification)

// Subscriber delivers notifications to registered handlers.
type Subscriber interface {
	Subscribe(h Handler)
}

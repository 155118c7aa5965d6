package automation

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/refdata"
	"github.com/liamcoop/hedgerules/rules"
	"github.com/liamcoop/hedgerules/schema"
)

// Order dataset points.
const (
	OrderStatus      = "OrderStatus"
	OrderTicker      = "OrderTicker"
	OrderNumber      = "OrderNumber"
	OrderAmount      = "OrderAmount"
	OrderSide        = "OrderSide"
	OrderNotes       = "OrderNotes"
	TriggerThreshold = "TriggerThreshold"
	HedgeTicker      = "HedgeTicker"
	AvgVolume20D     = "AvgVolume20D"
	Exchange         = "Exchange"
)

// Route dataset points. OrderNumber, OrderSide and HedgeTicker are shared
// with the order dataset.
const (
	RouteStatus   = "RouteStatus"
	RouteID       = "RouteID"
	Filled        = "Filled"
	PrevFilled    = "PrevFilled"
	Amount        = "Amount"
	RouteNotes    = "RouteNotes"
	RouteTicker   = "RouteTicker"
	RouteExchange = "RouteExchange"
)

// OrderSchema types the order dataset for guard expressions.
var OrderSchema = schema.Schema{
	OrderStatus:      schema.TypeString,
	OrderTicker:      schema.TypeString,
	OrderNumber:      schema.TypeInt,
	OrderAmount:      schema.TypeInt,
	OrderSide:        schema.TypeString,
	OrderNotes:       schema.TypeString,
	TriggerThreshold: schema.TypeDecimal,
	HedgeTicker:      schema.TypeString,
	AvgVolume20D:     schema.TypeDecimal,
	Exchange:         schema.TypeString,
}

// RouteSchema types the route dataset for guard expressions.
var RouteSchema = schema.Schema{
	RouteStatus:   schema.TypeString,
	OrderNumber:   schema.TypeInt,
	RouteID:       schema.TypeInt,
	Filled:        schema.TypeInt,
	PrevFilled:    schema.TypeInt,
	Amount:        schema.TypeInt,
	RouteNotes:    schema.TypeString,
	OrderSide:     schema.TypeString,
	RouteTicker:   schema.TypeString,
	RouteExchange: schema.TypeString,
	HedgeTicker:   schema.TypeString,
}

type binding struct {
	name   string
	source rules.Source
}

func populate(ds *rules.Dataset, points []binding) error {
	for _, p := range points {
		if _, err := ds.AddDataPoint(p.name, p.source); err != nil {
			return err
		}
	}
	return nil
}

func field(e gateway.Entity, name string) rules.Source {
	return rules.NewFieldSource(name, e.Field(name))
}

// BuildOrderDataset creates the dataset for an order. Reference data is
// resolved now; a lookup failure fails the build.
func BuildOrderDataset(ctx context.Context, e gateway.Entity, threshold decimal.Decimal, hedge string, refs refdata.Lookup) (*rules.Dataset, error) {
	ticker := e.Field(gateway.FieldTicker)

	avgVolume, err := rules.NewRefDataSource(ctx, refs, ticker, refdata.FieldAvgVolume20D)
	if err != nil {
		return nil, err
	}
	exchange, err := rules.NewRefDataSource(ctx, refs, ticker, refdata.FieldExchange)
	if err != nil {
		return nil, err
	}

	ds := rules.NewDataset(e.Key())
	err = populate(ds, []binding{
		{OrderStatus, field(e, gateway.FieldStatus)},
		{OrderTicker, field(e, gateway.FieldTicker)},
		{OrderNumber, rules.NewFieldSource(gateway.FieldSequence, sequence(e))},
		{OrderAmount, field(e, gateway.FieldAmount)},
		{OrderSide, field(e, gateway.FieldSide)},
		{OrderNotes, field(e, gateway.FieldNotes)},
		{TriggerThreshold, rules.NewConstSource(threshold)},
		{HedgeTicker, rules.NewConstSource(hedge)},
		{AvgVolume20D, avgVolume},
		{Exchange, exchange},
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// BuildRouteDataset creates the dataset for a route. The parent order
// supplies side and ticker; PrevFilled starts at the route's current
// filled quantity so fills that predate the dataset are not acted on.
func BuildRouteDataset(ctx context.Context, e gateway.Entity, hedge string, orders gateway.EntityLookup, refs refdata.Lookup) (*rules.Dataset, error) {
	parent, ok := orders.Order(e.Sequence)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrOrderNotFound, gateway.OrderKey(e.Sequence))
	}
	ticker := parent.Field(gateway.FieldTicker)

	exchange, err := rules.NewRefDataSource(ctx, refs, ticker, refdata.FieldExchange)
	if err != nil {
		return nil, err
	}

	filled := e.Field(gateway.FieldFilled)
	if filled == "" {
		filled = "0"
	}
	prevFilled, err := rules.AsInt(filled)
	if err != nil {
		return nil, fmt.Errorf("route %s filled quantity: %w", e.Key(), err)
	}

	notes := e.Field(gateway.FieldNotes)
	if _, carried := e.Fields[gateway.FieldNotes]; !carried {
		notes = parent.Field(gateway.FieldNotes)
	}

	ds := rules.NewDataset(e.Key())
	err = populate(ds, []binding{
		{RouteStatus, field(e, gateway.FieldStatus)},
		{OrderNumber, rules.NewFieldSource(gateway.FieldSequence, sequence(e))},
		{RouteID, rules.NewFieldSource(gateway.FieldRouteID, strconv.FormatInt(e.RouteID, 10))},
		{Filled, rules.NewFieldSource(gateway.FieldFilled, filled)},
		{Amount, field(e, gateway.FieldAmount)},
		{RouteNotes, rules.NewFieldSource(gateway.FieldNotes, notes)},
		{PrevFilled, rules.NewMutableSource(prevFilled)},
		{OrderSide, rules.NewConstSource(parent.Field(gateway.FieldSide))},
		{RouteTicker, rules.NewConstSource(ticker)},
		{RouteExchange, exchange},
		{HedgeTicker, rules.NewConstSource(hedge)},
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func sequence(e gateway.Entity) string {
	if s := e.Field(gateway.FieldSequence); s != "" {
		return s
	}
	return strconv.FormatInt(e.Sequence, 10)
}

package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/rules"
)

// Route request constants.
const (
	BrokerBB   = "BB"
	BrokerBMTB = "BMTB"

	orderTypeMarket = "MKT"
	handInstAny     = "ANY"
	tifDay          = "DAY"

	// HedgeNotesPrefix marks orders created by SendHedgeOrder.
	HedgeNotesPrefix = "HEDGE"
)

// VWAPStrategy starts at 09:30:00 and ends at 10:30:00; the remaining
// parameters are left to the broker's defaults.
func VWAPStrategy() *gateway.Strategy {
	s := &gateway.Strategy{
		Name: "VWAP",
		Fields: []gateway.StrategyField{
			{Data: "09:30:00", Indicator: 0}, // start time
			{Data: "10:30:00", Indicator: 0}, // end time
		},
	}
	// max volume %, AM session %, OPG, MOC, complete price, trigger price,
	// dark complete, dark complete price, reference index, discretion
	for i := 0; i < 10; i++ {
		s.Fields = append(s.Fields, gateway.StrategyField{Data: "", Indicator: 1})
	}
	return s
}

// submit sends req and waits at most timeout for the response.
func submit(ctx context.Context, s gateway.Submitter, timeout time.Duration, req gateway.Request) rules.ActionResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.Submit(ctx, req)
	if err != nil {
		return rules.Failed(fmt.Sprintf("%s %s: %v", req.Operation, req.ID, err))
	}
	if resp.Failed() {
		return rules.Rejected(resp.ErrorCode, resp.ErrorMessage)
	}
	ref := resp.Fields[gateway.FieldSequence]
	if id := resp.Fields[gateway.FieldRouteID]; id != "" {
		ref += "." + id
	}
	return rules.Succeeded(ref)
}

func stringValues(ds *rules.Dataset, names ...string) ([]string, error) {
	values := make([]string, len(names))
	for i, name := range names {
		dp, err := ds.DataPoint(name)
		if err != nil {
			return nil, err
		}
		if values[i], err = dp.StringValue(); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// SendNewRoute routes the whole order amount to Broker.
type SendNewRoute struct {
	Broker    string
	Strategy  *gateway.Strategy
	Submitter gateway.Submitter
	Timeout   time.Duration
}

func (a *SendNewRoute) Execute(ctx context.Context, ds *rules.Dataset) (rules.ActionResult, error) {
	v, err := stringValues(ds, OrderNumber, OrderAmount, OrderTicker)
	if err != nil {
		return rules.ActionResult{}, err
	}

	req := gateway.Request{
		ID:        uuid.New().String(),
		Operation: gateway.OpRouteEx,
		Fields: map[string]string{
			gateway.FieldSequence:        v[0],
			gateway.FieldAmount:          v[1],
			gateway.FieldTicker:          v[2],
			gateway.FieldBroker:          a.Broker,
			gateway.FieldHandInstruction: handInstAny,
			gateway.FieldOrderType:       orderTypeMarket,
			gateway.FieldTIF:             tifDay,
		},
		Strategy: a.Strategy,
	}
	return submit(ctx, a.Submitter, a.Timeout, req), nil
}

// SendHedgeOrder offsets the latest fill on a route with a market order
// in the hedge instrument.
type SendHedgeOrder struct {
	Ratio     decimal.Decimal
	Submitter gateway.Submitter
	Timeout   time.Duration
}

// HedgeAmount is delta × ratio rounded down, and at least one share.
func HedgeAmount(delta int64, ratio decimal.Decimal) int64 {
	amount := decimal.NewFromInt(delta).Mul(ratio).Floor().IntPart()
	return max(amount, 1)
}

func (a *SendHedgeOrder) Execute(ctx context.Context, ds *rules.Dataset) (rules.ActionResult, error) {
	filledDP, err := ds.DataPoint(Filled)
	if err != nil {
		return rules.ActionResult{}, err
	}
	filled, err := filledDP.IntValue()
	if err != nil {
		return rules.ActionResult{}, err
	}
	prevDP, err := ds.DataPoint(PrevFilled)
	if err != nil {
		return rules.ActionResult{}, err
	}
	prev, err := prevDP.IntValue()
	if err != nil {
		return rules.ActionResult{}, err
	}
	v, err := stringValues(ds, OrderNumber, OrderSide, HedgeTicker)
	if err != nil {
		return rules.ActionResult{}, err
	}

	delta := filled - prev
	if delta <= 0 {
		return rules.Failed(fmt.Sprintf("no fill to hedge: filled %d, previously %d", filled, prev)), nil
	}

	req := gateway.Request{
		ID:        uuid.New().String(),
		Operation: gateway.OpCreateOrderAndRouteEx,
		Fields: map[string]string{
			gateway.FieldTicker:          v[2],
			gateway.FieldAmount:          fmt.Sprint(HedgeAmount(delta, a.Ratio)),
			gateway.FieldSide:            gateway.OppositeSide(v[1]),
			gateway.FieldNotes:           HedgeNotesPrefix + ":" + v[0],
			gateway.FieldBroker:          BrokerBB,
			gateway.FieldHandInstruction: handInstAny,
			gateway.FieldOrderType:       orderTypeMarket,
			gateway.FieldTIF:             tifDay,
		},
	}
	return submit(ctx, a.Submitter, a.Timeout, req), nil
}

// RecordFill copies Filled into PrevFilled.
type RecordFill struct{}

func (RecordFill) Execute(_ context.Context, ds *rules.Dataset) (rules.ActionResult, error) {
	filledDP, err := ds.DataPoint(Filled)
	if err != nil {
		return rules.ActionResult{}, err
	}
	filled, err := filledDP.IntValue()
	if err != nil {
		return rules.ActionResult{}, err
	}
	prevDP, err := ds.DataPoint(PrevFilled)
	if err != nil {
		return rules.ActionResult{}, err
	}
	if err := prevDP.Set(filled); err != nil {
		return rules.ActionResult{}, err
	}
	return rules.Succeeded(fmt.Sprint(filled)), nil
}

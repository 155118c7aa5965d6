package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/refdata"
	"github.com/liamcoop/hedgerules/rules"
)

// staticOrders is an EntityLookup over a fixed set of orders
type staticOrders map[int64]gateway.Entity

func (s staticOrders) Order(seq int64) (gateway.Entity, bool) {
	e, ok := s[seq]
	return e, ok
}

func testRefs() *refdata.Static {
	return refdata.NewStatic(map[string]map[string]string{
		usTicker: {refdata.FieldExchange: "US", refdata.FieldAvgVolume20D: "2000"},
	})
}

func parentOrder() gateway.Entity {
	return gateway.Entity{
		Category: gateway.CategoryOrder,
		Sequence: 5,
		Fields: map[string]string{
			gateway.FieldSequence: "5",
			gateway.FieldStatus:   gateway.StatusWorking,
			gateway.FieldTicker:   usTicker,
			gateway.FieldSide:     gateway.SideSell,
			gateway.FieldAmount:   "100",
			gateway.FieldNotes:    "client note",
		},
	}
}

func value(t *testing.T, ds *rules.Dataset, name string) string {
	t.Helper()
	dp, err := ds.DataPoint(name)
	if err != nil {
		t.Fatalf("DataPoint(%q) failed: %v", name, err)
	}
	v, err := dp.StringValue()
	if err != nil {
		t.Fatalf("%s.StringValue() failed: %v", name, err)
	}
	return v
}

// TestBuildOrderDataset tests the datapoints of an order dataset
func TestBuildOrderDataset(t *testing.T) {
	ds, err := BuildOrderDataset(context.Background(), parentOrder(), decimal.RequireFromString("0.1"), hedgeTicker, testRefs())
	if err != nil {
		t.Fatalf("BuildOrderDataset() failed: %v", err)
	}

	if ds.Name() != "order 5" {
		t.Errorf("Name() = %q, want \"order 5\"", ds.Name())
	}
	want := map[string]string{
		OrderStatus:      gateway.StatusWorking,
		OrderTicker:      usTicker,
		OrderNumber:      "5",
		OrderAmount:      "100",
		OrderSide:        gateway.SideSell,
		OrderNotes:       "client note",
		TriggerThreshold: "0.1",
		HedgeTicker:      hedgeTicker,
		AvgVolume20D:     "2000",
		Exchange:         "US",
	}
	for name, v := range want {
		if got := value(t, ds, name); got != v {
			t.Errorf("%s = %q, want %q", name, got, v)
		}
	}
	for name := range OrderSchema {
		if _, ok := want[name]; !ok {
			t.Errorf("OrderSchema declares %s, which the dataset test does not cover", name)
		}
	}
}

// TestBuildRouteDataset tests the datapoints of a route dataset
func TestBuildRouteDataset(t *testing.T) {
	orders := staticOrders{5: parentOrder()}

	tests := []struct {
		name      string
		fields    map[string]string
		wantNotes string
		wantPrev  int64
	}{
		{
			name:      "notes from route",
			fields:    map[string]string{gateway.FieldNotes: "HEDGE:1", gateway.FieldFilled: "40"},
			wantNotes: "HEDGE:1",
			wantPrev:  40,
		},
		{
			name:      "notes from parent",
			fields:    map[string]string{},
			wantNotes: "client note",
			wantPrev:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := gateway.Entity{Category: gateway.CategoryRoute, Sequence: 5, RouteID: 2, Fields: tt.fields}
			ds, err := BuildRouteDataset(context.Background(), route, hedgeTicker, orders, testRefs())
			if err != nil {
				t.Fatalf("BuildRouteDataset() failed: %v", err)
			}

			if ds.Name() != "route 5.2" {
				t.Errorf("Name() = %q, want \"route 5.2\"", ds.Name())
			}
			if got := value(t, ds, RouteNotes); got != tt.wantNotes {
				t.Errorf("RouteNotes = %q, want %q", got, tt.wantNotes)
			}
			prev, _ := ds.DataPoint(PrevFilled)
			if got, _ := prev.IntValue(); got != tt.wantPrev {
				t.Errorf("PrevFilled = %d, want %d", got, tt.wantPrev)
			}
			for name, want := range map[string]string{
				OrderNumber:   "5",
				RouteID:       "2",
				OrderSide:     gateway.SideSell,
				RouteTicker:   usTicker,
				RouteExchange: "US",
				HedgeTicker:   hedgeTicker,
			} {
				if got := value(t, ds, name); got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

// TestBuildRouteDataset_Errors tests resolution failures
func TestBuildRouteDataset_Errors(t *testing.T) {
	route := gateway.Entity{Category: gateway.CategoryRoute, Sequence: 5, RouteID: 1}

	_, err := BuildRouteDataset(context.Background(), route, hedgeTicker, staticOrders{}, testRefs())
	if !errors.Is(err, gateway.ErrOrderNotFound) {
		t.Errorf("Missing parent: err = %v, want ErrOrderNotFound", err)
	}

	_, err = BuildRouteDataset(context.Background(), route, hedgeTicker, staticOrders{5: parentOrder()}, refdata.NewStatic(nil))
	if !errors.Is(err, refdata.ErrUnknownInstrument) {
		t.Errorf("Missing ref data: err = %v, want ErrUnknownInstrument", err)
	}

	route.Fields = map[string]string{gateway.FieldFilled: "lots"}
	_, err = BuildRouteDataset(context.Background(), route, hedgeTicker, staticOrders{5: parentOrder()}, testRefs())
	if !errors.Is(err, rules.ErrNotNumeric) {
		t.Errorf("Bad filled quantity: err = %v, want ErrNotNumeric", err)
	}
}

// routeDataset builds a route dataset with the given starting status and fill
func routeDataset(t *testing.T, status, filled string) *rules.Dataset {
	t.Helper()
	route := gateway.Entity{
		Category: gateway.CategoryRoute,
		Sequence: 5,
		RouteID:  1,
		Fields:   map[string]string{gateway.FieldStatus: status, gateway.FieldFilled: filled},
	}
	ds, err := BuildRouteDataset(context.Background(), route, hedgeTicker, staticOrders{5: parentOrder()}, testRefs())
	if err != nil {
		t.Fatalf("BuildRouteDataset() failed: %v", err)
	}
	return ds
}

// TestRouteFillOccurred tests fill detection against the previous route status
func TestRouteFillOccurred(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		updates [][2]string // field, value
		want    bool
	}{
		{"no change", gateway.StatusWorking, nil, false},
		{"fill while working", gateway.StatusWorking, [][2]string{{gateway.FieldFilled, "10"}}, true},
		{"fill moves to partfill", gateway.StatusWorking, [][2]string{
			{gateway.FieldFilled, "10"}, {gateway.FieldStatus, gateway.StatusPartFill},
		}, true},
		{"fill while partfill", gateway.StatusPartFill, [][2]string{{gateway.FieldFilled, "10"}}, true},
		{"fill on filled route", gateway.StatusFilled, [][2]string{{gateway.FieldFilled, "10"}}, false},
		{"fill after cancel", gateway.StatusCancel, [][2]string{{gateway.FieldFilled, "10"}}, false},
		{"status change only", gateway.StatusWorking, [][2]string{{gateway.FieldStatus, gateway.StatusCancel}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := routeDataset(t, tt.status, "0")
			for _, u := range tt.updates {
				ds.ApplyFieldChange(u[0], u[1])
			}

			got, err := RouteFillOccurred{}.Evaluate(ds)
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestRecordFill tests that RecordFill suppresses a repeat of the same fill
func TestRecordFill(t *testing.T) {
	ds := routeDataset(t, gateway.StatusWorking, "0")
	ds.ApplyFieldChange(gateway.FieldFilled, "25")

	result, err := RecordFill{}.Execute(context.Background(), ds)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if result.Status != rules.StatusSucceeded || result.Reference != "25" {
		t.Errorf("Execute() = %+v, want succeeded \"25\"", result)
	}

	held, err := RouteFillOccurred{}.Evaluate(ds)
	if err != nil {
		t.Fatal(err)
	}
	if held {
		t.Error("RouteFillOccurred still holds after RecordFill")
	}
}

// TestHedgeAmount tests hedge sizing
func TestHedgeAmount(t *testing.T) {
	tests := []struct {
		delta int64
		ratio string
		want  int64
	}{
		{50, "1", 50},
		{50, "0.5", 25},
		{7, "0.5", 3},
		{1, "0.3", 1},
		{1000, "1.25", 1250},
	}

	for _, tt := range tests {
		if got := HedgeAmount(tt.delta, decimal.RequireFromString(tt.ratio)); got != tt.want {
			t.Errorf("HedgeAmount(%d, %s) = %d, want %d", tt.delta, tt.ratio, got, tt.want)
		}
	}
}

// TestVWAPStrategy tests the BMTB strategy parameters
func TestVWAPStrategy(t *testing.T) {
	s := VWAPStrategy()
	if s.Name != "VWAP" {
		t.Errorf("Name = %q, want VWAP", s.Name)
	}
	if len(s.Fields) != 12 {
		t.Fatalf("Got %d fields, want 12", len(s.Fields))
	}
	if s.Fields[0].Data != "09:30:00" || s.Fields[1].Data != "10:30:00" {
		t.Errorf("Times = %q, %q", s.Fields[0].Data, s.Fields[1].Data)
	}
	for i, f := range s.Fields[2:] {
		if f.Indicator != 1 || f.Data != "" {
			t.Errorf("Field %d = %+v, want blank with indicator 1", i+2, f)
		}
	}
}

// fakeSubmitter returns a canned response or error
type fakeSubmitter struct {
	resp gateway.Response
	err  error
	last gateway.Request
}

func (f *fakeSubmitter) Submit(_ context.Context, req gateway.Request) (gateway.Response, error) {
	f.last = req
	return f.resp, f.err
}

// TestSendHedgeOrder_Request tests the hedge request fields
func TestSendHedgeOrder_Request(t *testing.T) {
	ds := routeDataset(t, gateway.StatusWorking, "10")
	ds.ApplyFieldChange(gateway.FieldFilled, "30")

	sub := &fakeSubmitter{resp: gateway.Response{Fields: map[string]string{gateway.FieldSequence: "9", gateway.FieldRouteID: "1"}}}
	action := &SendHedgeOrder{Ratio: decimal.NewFromInt(2), Submitter: sub, Timeout: testConfig().ActionTimeout}

	result, err := action.Execute(context.Background(), ds)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if result.Status != rules.StatusSucceeded || result.Reference != "9.1" {
		t.Errorf("Execute() = %+v, want succeeded \"9.1\"", result)
	}

	req := sub.last
	if req.Operation != gateway.OpCreateOrderAndRouteEx || req.ID == "" {
		t.Errorf("Request = %s %q", req.Operation, req.ID)
	}
	want := map[string]string{
		gateway.FieldTicker: hedgeTicker,
		gateway.FieldAmount: "40",
		gateway.FieldSide:   gateway.SideBuy,
		gateway.FieldNotes:  "HEDGE:5",
		gateway.FieldBroker: BrokerBB,
	}
	for field, v := range want {
		if got := req.Fields[field]; got != v {
			t.Errorf("Request %s = %q, want %q", field, got, v)
		}
	}
}

// TestSubmit_Outcomes tests how submission results map to action results
func TestSubmit_Outcomes(t *testing.T) {
	tests := []struct {
		name   string
		sub    *fakeSubmitter
		status rules.Status
	}{
		{"accepted", &fakeSubmitter{resp: gateway.Response{Fields: map[string]string{gateway.FieldSequence: "1"}}}, rules.StatusSucceeded},
		{"rejected", &fakeSubmitter{resp: gateway.Response{ErrorCode: 3, ErrorMessage: "halted"}}, rules.StatusRejected},
		{"transport error", &fakeSubmitter{err: gateway.ErrClosed}, rules.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := submit(context.Background(), tt.sub, testConfig().ActionTimeout, gateway.Request{ID: "r1", Operation: gateway.OpRouteEx})
			if result.Status != tt.status {
				t.Errorf("submit() status = %s, want %s", result.Status, tt.status)
			}
		})
	}
}

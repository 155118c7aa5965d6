package automation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/rules"
	"github.com/liamcoop/hedgerules/schema"
)

const (
	OrderRuleSet = "OrderRules"
	RouteRuleSet = "RouteRules"
)

// Guard compiles an operator-supplied CEL expression over s into a
// condition. An empty expression yields no condition.
func Guard(name string, s schema.Schema, expr string) (*rules.RuleCondition, error) {
	if expr == "" {
		return nil, nil
	}
	ev, err := rules.NewExpression(s, expr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rules.NewCondition(name, ev), nil
}

func conditions(guard *rules.RuleCondition, conds ...*rules.RuleCondition) []*rules.RuleCondition {
	if guard != nil {
		conds = append(conds, guard)
	}
	return conds
}

// NewOrderRules routes new US orders to BB and new London orders to BMTB
// with a VWAP strategy, provided the order is not a hedge and is small
// relative to average volume. guard, when non-nil, is added to each rule.
func NewOrderRules(submitter gateway.Submitter, timeout time.Duration, guard *rules.RuleCondition) *rules.RuleSet {
	statusNew := rules.NewCondition("OrderStatusIsNew", rules.StringEquality(OrderStatus, gateway.StatusNew))
	notHedge := rules.NewCondition("OrderNotHedge", rules.StringInequality(OrderNotes, HedgeNotesPrefix))
	amountTrigger := rules.NewCondition("OrderAmountTrigger", rules.OrderAmountThreshold())
	exchangeUS := rules.NewCondition("OrderExchangeUS", rules.StringEquality(Exchange, "US"))
	exchangeLN := rules.NewCondition("OrderExchangeLN", rules.StringEquality(Exchange, "LN"))

	routeBB := rules.NewAction("SendNewRouteBB", &SendNewRoute{Broker: BrokerBB, Submitter: submitter, Timeout: timeout})
	routeBMTB := rules.NewAction("SendNewRouteBMTB", &SendNewRoute{Broker: BrokerBMTB, Strategy: VWAPStrategy(), Submitter: submitter, Timeout: timeout})

	return rules.NewRuleSet(OrderRuleSet).
		AddRule(rules.NewRule("NewOrderUS",
			conditions(guard, statusNew, notHedge, amountTrigger, exchangeUS),
			[]*rules.Action{routeBB})).
		AddRule(rules.NewRule("NewOrderLN",
			conditions(guard, statusNew, notHedge, amountTrigger, exchangeLN),
			[]*rules.Action{routeBMTB}))
}

// NewRouteRules hedges fills on US routes that are not themselves hedges,
// then records the fill. HedgeOnFill precedes RecordFill so the hedge sees
// the fill delta.
func NewRouteRules(submitter gateway.Submitter, timeout time.Duration, ratio decimal.Decimal, guard *rules.RuleCondition) *rules.RuleSet {
	fillOccurred := rules.NewCondition("RouteFillOccurred", RouteFillOccurred{})
	exchangeUS := rules.NewCondition("RouteExchangeUS", rules.StringEquality(RouteExchange, "US"))
	notHedge := rules.NewCondition("RouteNotHedge", rules.StringInequality(RouteNotes, HedgeNotesPrefix))

	hedge := rules.NewAction("SendHedgeOrder", &SendHedgeOrder{Ratio: ratio, Submitter: submitter, Timeout: timeout})
	record := rules.NewAction("RecordFill", RecordFill{})

	return rules.NewRuleSet(RouteRuleSet).
		AddRule(rules.NewRule("HedgeOnFill",
			conditions(guard, fillOccurred, exchangeUS, notHedge),
			[]*rules.Action{hedge})).
		AddRule(rules.NewRule("RecordFill",
			conditions(guard, fillOccurred),
			[]*rules.Action{record}))
}

package automation

import (
	"github.com/liamcoop/hedgerules/gateway"
	"github.com/liamcoop/hedgerules/rules"
)

// RouteFillOccurred holds when Filled exceeds PrevFilled and the route was
// WORKING or PARTFILL before its last status change. A route whose status
// never changed is judged by its current status, so replayed history on a
// FILLED route is ignored.
type RouteFillOccurred struct{}

func (RouteFillOccurred) DependsOn() []string {
	return []string{Filled, PrevFilled, RouteStatus}
}

func (RouteFillOccurred) Evaluate(ds *rules.Dataset) (bool, error) {
	filledDP, err := ds.DataPoint(Filled)
	if err != nil {
		return false, err
	}
	filled, err := filledDP.IntValue()
	if err != nil {
		return false, err
	}

	prevDP, err := ds.DataPoint(PrevFilled)
	if err != nil {
		return false, err
	}
	prev, err := prevDP.IntValue()
	if err != nil {
		return false, err
	}

	if filled <= prev {
		return false, nil
	}

	statusDP, err := ds.DataPoint(RouteStatus)
	if err != nil {
		return false, err
	}
	previous, ok := statusDP.Previous()
	if !ok {
		previous = statusDP.Value()
	}
	status, err := rules.AsString(previous)
	if err != nil {
		return false, err
	}

	return status == gateway.StatusWorking || status == gateway.StatusPartFill, nil
}

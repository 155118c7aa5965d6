package gateway

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/liamcoop/hedgerules/internal/logger"
)

// Simulator is an in-process paper venue. It creates orders and routes
// from submitted requests and publishes notifications from its own
// dispatch loop, so handlers may submit without deadlocking.
type Simulator struct {
	mu       sync.Mutex
	orders   map[int64]*Entity
	routes   map[int64][]*Entity // sequence -> routes, route ID is index+1
	nextSeq  int64
	rejects  map[string]Response
	latency  time.Duration
	handlers []Handler

	qmu       sync.Mutex
	pending   []delivery
	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

type delivery struct {
	n  Notification
	to []Handler // handlers subscribed when n was published
}

type SimulatorOption func(*Simulator)

// WithLatency delays every Submit by d.
func WithLatency(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.latency = d }
}

// WithFirstSequence sets the sequence of the first order created.
func WithFirstSequence(seq int64) SimulatorOption {
	return func(s *Simulator) { s.nextSeq = seq }
}

func NewSimulator(opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		orders:  make(map[int64]*Entity),
		routes:  make(map[int64][]*Entity),
		nextSeq: 1,
		rejects: make(map[string]Response),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.dispatch()
	return s
}

// Close stops the dispatch loop. Undelivered notifications are dropped.
func (s *Simulator) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped
	})
}

// Subscribe registers h and paints every existing order, then every
// existing route, to it.
func (s *Simulator) Subscribe(h Handler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)

	var paint []Notification
	for _, seq := range s.sequences() {
		paint = append(paint, s.note(s.orders[seq], TypeInitialPaint, nil))
	}
	for _, seq := range s.sequences() {
		for _, r := range s.routes[seq] {
			paint = append(paint, s.note(r, TypeInitialPaint, nil))
		}
	}
	s.mu.Unlock()

	for _, n := range paint {
		s.enqueue(delivery{n: n, to: []Handler{h}})
	}
}

// RejectTicker makes route requests for ticker fail with code and message.
func (s *Simulator) RejectTicker(ticker string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[ticker] = Response{ErrorCode: code, ErrorMessage: message}
}

// Order returns a copy of the order with the given sequence.
func (s *Simulator) Order(sequence int64) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[sequence]
	if !ok {
		return Entity{}, false
	}
	return clone(o), true
}

// Route returns a copy of the given route.
func (s *Simulator) Route(sequence, routeID int64) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.route(sequence, routeID)
	if r == nil {
		return Entity{}, false
	}
	return clone(r), true
}

// Routes returns copies of every route of an order.
func (s *Simulator) Routes(sequence int64) []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entity, 0, len(s.routes[sequence]))
	for _, r := range s.routes[sequence] {
		out = append(out, clone(r))
	}
	return out
}

// NewOrder creates an order in status NEW and publishes it.
func (s *Simulator) NewOrder(ticker, side string, amount int64, notes string) Entity {
	s.mu.Lock()
	o := s.createOrder(ticker, side, amount, notes)
	n := s.note(o, TypeNew, nil)
	s.mu.Unlock()

	s.publish(n)
	return clone(o)
}

// Fill executes qty on a route and publishes the route and order updates.
func (s *Simulator) Fill(sequence, routeID, qty int64) error {
	s.mu.Lock()

	r := s.route(sequence, routeID)
	if r == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRouteNotFound, RouteKey(sequence, routeID))
	}
	o := s.orders[sequence]

	amount, _ := strconv.ParseInt(r.Fields[FieldAmount], 10, 64)
	filled, _ := strconv.ParseInt(r.Fields[FieldFilled], 10, 64)
	filled = min(filled+qty, amount)

	status := StatusPartFill
	if filled >= amount {
		status = StatusFilled
	}
	routeNote := s.note(r, TypeUpdate, s.set(r, map[string]string{
		FieldFilled: strconv.FormatInt(filled, 10),
		FieldStatus: status,
	}))

	orderAmount, _ := strconv.ParseInt(o.Fields[FieldAmount], 10, 64)
	orderFilled, _ := strconv.ParseInt(o.Fields[FieldFilled], 10, 64)
	orderFilled = min(orderFilled+qty, orderAmount)
	orderStatus := StatusPartFill
	if orderFilled >= orderAmount {
		orderStatus = StatusFilled
	}
	orderNote := s.note(o, TypeUpdate, s.set(o, map[string]string{
		FieldFilled: strconv.FormatInt(orderFilled, 10),
		FieldStatus: orderStatus,
	}))
	s.mu.Unlock()

	s.publish(routeNote)
	s.publish(orderNote)
	return nil
}

// Replay publishes n as is.
func (s *Simulator) Replay(n Notification) {
	s.publish(n)
}

// Submit executes RouteEx and CreateOrderAndRouteEx requests.
func (s *Simulator) Submit(ctx context.Context, req Request) (Response, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Response{}, fmt.Errorf("%w: %s %s: %v", ErrTimeout, req.Operation, req.ID, ctx.Err())
		case <-s.done:
			return Response{}, ErrClosed
		}
	}

	select {
	case <-s.done:
		return Response{}, ErrClosed
	default:
	}

	logger.Debug("simulator request", "id", req.ID, "operation", req.Operation)

	switch req.Operation {
	case OpRouteEx:
		return s.routeEx(req), nil
	case OpCreateOrderAndRouteEx:
		return s.createOrderAndRouteEx(req), nil
	default:
		return Response{Operation: req.Operation, ErrorCode: 9, ErrorMessage: "unknown operation " + req.Operation}, nil
	}
}

func (s *Simulator) routeEx(req Request) Response {
	seq, err := strconv.ParseInt(req.Fields[FieldSequence], 10, 64)
	if err != nil {
		return reject(req, 1, "invalid order sequence")
	}
	amount, err := strconv.ParseInt(req.Fields[FieldAmount], 10, 64)
	if err != nil || amount <= 0 {
		return reject(req, 2, "invalid amount")
	}

	s.mu.Lock()
	o, ok := s.orders[seq]
	if !ok {
		s.mu.Unlock()
		return reject(req, 1, "invalid order sequence")
	}
	if rej, ok := s.rejects[o.Fields[FieldTicker]]; ok {
		s.mu.Unlock()
		return reject(req, rej.ErrorCode, rej.ErrorMessage)
	}

	r := s.createRoute(o, amount, req.Fields[FieldBroker])
	notes := []Notification{s.note(r, TypeNew, nil)}
	if o.Fields[FieldStatus] == StatusNew {
		notes = append(notes, s.note(o, TypeUpdate, s.set(o, map[string]string{FieldStatus: StatusWorking})))
	}
	resp := s.accept(req, r)
	s.mu.Unlock()

	for _, n := range notes {
		s.publish(n)
	}
	return resp
}

func (s *Simulator) createOrderAndRouteEx(req Request) Response {
	amount, err := strconv.ParseInt(req.Fields[FieldAmount], 10, 64)
	if err != nil || amount <= 0 {
		return reject(req, 2, "invalid amount")
	}
	ticker := req.Fields[FieldTicker]

	s.mu.Lock()
	if rej, ok := s.rejects[ticker]; ok {
		s.mu.Unlock()
		return reject(req, rej.ErrorCode, rej.ErrorMessage)
	}

	o := s.createOrder(ticker, req.Fields[FieldSide], amount, req.Fields[FieldNotes])
	notes := []Notification{s.note(o, TypeNew, nil)}
	r := s.createRoute(o, amount, req.Fields[FieldBroker])
	notes = append(notes,
		s.note(r, TypeNew, nil),
		s.note(o, TypeUpdate, s.set(o, map[string]string{FieldStatus: StatusWorking})),
	)
	resp := s.accept(req, r)
	s.mu.Unlock()

	for _, n := range notes {
		s.publish(n)
	}
	return resp
}

func reject(req Request, code int, message string) Response {
	return Response{Operation: req.Operation, ErrorCode: code, ErrorMessage: message}
}

func (s *Simulator) accept(req Request, r *Entity) Response {
	return Response{
		Operation: req.Operation,
		Fields: map[string]string{
			FieldSequence: strconv.FormatInt(r.Sequence, 10),
			FieldRouteID:  strconv.FormatInt(r.RouteID, 10),
		},
	}
}

// createOrder and the helpers below expect s.mu to be held.
func (s *Simulator) createOrder(ticker, side string, amount int64, notes string) *Entity {
	seq := s.nextSeq
	s.nextSeq++

	o := &Entity{
		Category: CategoryOrder,
		Sequence: seq,
		Fields: map[string]string{
			FieldSequence: strconv.FormatInt(seq, 10),
			FieldStatus:   StatusNew,
			FieldTicker:   ticker,
			FieldSide:     side,
			FieldAmount:   strconv.FormatInt(amount, 10),
			FieldFilled:   "0",
			FieldNotes:    notes,
		},
	}
	s.orders[seq] = o
	return o
}

func (s *Simulator) createRoute(o *Entity, amount int64, broker string) *Entity {
	id := int64(len(s.routes[o.Sequence]) + 1)
	r := &Entity{
		Category: CategoryRoute,
		Sequence: o.Sequence,
		RouteID:  id,
		Fields: map[string]string{
			FieldSequence: o.Fields[FieldSequence],
			FieldRouteID:  strconv.FormatInt(id, 10),
			FieldStatus:   StatusWorking,
			FieldTicker:   o.Fields[FieldTicker],
			FieldAmount:   strconv.FormatInt(amount, 10),
			FieldFilled:   "0",
			FieldBroker:   broker,
			FieldNotes:    o.Fields[FieldNotes],
		},
	}
	s.routes[o.Sequence] = append(s.routes[o.Sequence], r)
	return r
}

func (s *Simulator) route(sequence, routeID int64) *Entity {
	routes := s.routes[sequence]
	if routeID < 1 || routeID > int64(len(routes)) {
		return nil
	}
	return routes[routeID-1]
}

func (s *Simulator) set(e *Entity, values map[string]string) []FieldChange {
	var changes []FieldChange
	for _, field := range []string{FieldFilled, FieldStatus} {
		v, ok := values[field]
		if !ok || e.Fields[field] == v {
			continue
		}
		changes = append(changes, FieldChange{Field: field, OldValue: e.Fields[field], NewValue: v})
		e.Fields[field] = v
	}
	return changes
}

func (s *Simulator) sequences() []int64 {
	seqs := make([]int64, 0, len(s.orders))
	for seq := int64(1); seq < s.nextSeq; seq++ {
		if _, ok := s.orders[seq]; ok {
			seqs = append(seqs, seq)
		}
	}
	return seqs
}

func (s *Simulator) note(e *Entity, typ NotificationType, changes []FieldChange) Notification {
	return Notification{Category: e.Category, Type: typ, Entity: clone(e), Changes: changes}
}

func clone(e *Entity) Entity {
	c := *e
	c.Fields = maps.Clone(e.Fields)
	return c
}

func (s *Simulator) publish(n Notification) {
	s.mu.Lock()
	handlers := append([]Handler(nil), s.handlers...)
	s.mu.Unlock()

	s.enqueue(delivery{n: n, to: handlers})
}

func (s *Simulator) enqueue(d delivery) {
	s.qmu.Lock()
	s.pending = append(s.pending, d)
	s.qmu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Simulator) dispatch() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.qmu.Lock()
			batch := s.pending
			s.pending = nil
			s.qmu.Unlock()
			if len(batch) == 0 {
				break
			}

			for _, d := range batch {
				for _, h := range d.to {
					h(d.n)
				}
			}
		}
	}
}

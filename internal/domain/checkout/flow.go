// Package checkout turns a session's cart into a persisted order.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/metagear/storefront/internal/domain/auth"
	"github.com/metagear/storefront/internal/domain/cart"
	"github.com/metagear/storefront/internal/domain/order"
	"github.com/metagear/storefront/internal/domain/pricing"
	"github.com/metagear/storefront/internal/domain/product"
	"github.com/metagear/storefront/internal/domain/route"
)

const instrumentationName = "github.com/metagear/storefront/internal/domain/checkout"

// Carts is the cart access checkout needs.
type Carts interface {
	Get(ctx context.Context, sess *auth.Session) (*cart.Cart, error)
	Settle(ctx context.Context, sess *auth.Session, ordered []cart.Line) error
}

// Products re-reads catalog prices at submission time.
type Products interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// Options configures a Service.
type Options struct {
	Policy pricing.Policy
	// Compensate deletes the order header when the items write fails.
	Compensate bool

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

// Receipt is the result of a confirmed submission.
type Receipt struct {
	Order   *order.Order
	Summary pricing.Summary
	// Next is the view the client should show.
	Next route.Route
}

// Service runs the order submission flow.
type Service struct {
	carts      Carts
	products   Products
	orders     order.Repository
	policy     pricing.Policy
	compensate bool
	observe    func(from, to State)

	tracer      trace.Tracer
	transitions metric.Int64Counter
	duration    metric.Float64Histogram

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService creates a checkout Service.
func NewService(carts Carts, products Products, orders order.Repository, opts Options) (*Service, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, errors.Wrap(err, "pricing policy")
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	transitions, err := meter.Int64Counter("checkout.transitions",
		metric.WithDescription("Checkout state transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	duration, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout submission duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &Service{
		carts:       carts,
		products:    products,
		orders:      orders,
		policy:      opts.Policy,
		compensate:  opts.Compensate,
		observe:     opts.OnTransition,
		tracer:      opts.TracerProvider.Tracer(instrumentationName),
		transitions: transitions,
		duration:    duration,
		inFlight:    make(map[string]struct{}),
	}, nil
}

// Submit validates the session's cart, writes the order header and then its
// items, and removes the ordered lines from the cart once both writes succeed. Failures after the
// header write are returned as *StageError. There is no retry.
func (s *Service) Submit(ctx context.Context, sess *auth.Session) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Submit")
	defer span.End()

	start := time.Now()
	sub := &submission{svc: s, state: Idle}
	receipt, err := sub.run(ctx, sess)

	s.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("state", sub.state.String())),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", receipt.Order.ID))
	return receipt, nil
}

func (s *Service) acquire(subjectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inFlight[subjectID]; ok {
		return false
	}
	s.inFlight[subjectID] = struct{}{}
	return true
}

func (s *Service) release(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, subjectID)
}

// submission is a single pass through the state machine.
type submission struct {
	svc   *Service
	state State
}

func (sub *submission) to(ctx context.Context, next State) {
	prev := sub.state
	sub.state = next

	zctx.From(ctx).Debug("Checkout transition",
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
	)
	sub.svc.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", prev.String()),
		attribute.String("to", next.String()),
	))
	trace.SpanFromContext(ctx).AddEvent(next.String())
	if sub.svc.observe != nil {
		sub.svc.observe(prev, next)
	}
}

func (sub *submission) fail(ctx context.Context, err error) error {
	sub.to(ctx, Failed)
	return err
}

func (sub *submission) run(ctx context.Context, sess *auth.Session) (*Receipt, error) {
	s := sub.svc
	sub.to(ctx, Validating)

	if sess == nil {
		return nil, sub.fail(ctx, auth.ErrUnauthenticated)
	}
	userID := sess.Subject.ID
	if !s.acquire(userID) {
		return nil, sub.fail(ctx, ErrCheckoutInProgress)
	}
	defer s.release(userID)

	lg := zctx.From(ctx).With(zap.String("user_id", userID))

	c, err := s.carts.Get(ctx, sess)
	if err != nil {
		return nil, sub.fail(ctx, errors.Wrap(err, "load cart"))
	}
	if c.Empty() {
		return nil, sub.fail(ctx, ErrEmptyCart)
	}

	lines, err := sub.refresh(ctx, c.Lines)
	if err != nil {
		return nil, sub.fail(ctx, err)
	}
	summary := s.policy.Summarize(lines)

	// Write header.
	sub.to(ctx, SubmittingOrder)
	o := &order.Order{
		UserID:      userID,
		Subtotal:    summary.Subtotal,
		ShippingFee: summary.ShippingFee,
		Tax:         summary.Tax,
		Total:       summary.Total,
		Status:      order.StatusPending,
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		lg.Warn("Order header write failed", zap.Error(err))
		return nil, sub.fail(ctx, &StageError{Stage: SubmittingOrder, Err: err})
	}
	lg = lg.With(zap.String("order_id", o.ID))

	// Write items.
	sub.to(ctx, SubmittingItems)
	items := make([]order.Item, len(lines))
	for i, l := range lines {
		p := l.Product
		items[i] = order.Item{
			ProductID: p.ID,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
			Product:   &p,
		}
	}
	if err := s.orders.CreateItems(ctx, o.ID, items); err != nil {
		stageErr := &StageError{Stage: SubmittingItems, OrderID: o.ID, Err: err}
		stageErr.Orphaned = !sub.compensate(ctx, lg, o)
		if stageErr.Orphaned {
			lg.Error("Order stored without items", zap.Error(err))
		}
		return nil, sub.fail(ctx, stageErr)
	}
	o.Items = items

	sub.to(ctx, Confirmed)
	if err := s.carts.Settle(ctx, sess, lines); err != nil {
		lg.Warn("Settle cart after checkout", zap.Error(err))
	}
	lg.Info("Order confirmed", zap.String("total", o.Total.StringFixed(2)))

	return &Receipt{
		Order:   o,
		Summary: summary,
		Next:    route.Receipt{OrderID: o.ID},
	}, nil
}

// refresh replaces each line's product snapshot with the current catalog row.
func (sub *submission) refresh(ctx context.Context, lines []cart.Line) ([]cart.Line, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.Product.ID
	}

	fetched, err := sub.svc.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	out := make([]cart.Line, len(lines))
	for i, l := range lines {
		p, ok := byID[l.Product.ID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.Product.ID}
		}
		out[i] = cart.Line{Product: p, Quantity: l.Quantity}
	}
	return out, nil
}

// compensate removes the header of an order whose items could not be
// written. It reports whether the header is gone.
func (sub *submission) compensate(ctx context.Context, lg *zap.Logger, o *order.Order) bool {
	if !sub.svc.compensate {
		return false
	}
	// The client may already be gone; the delete still has to run.
	if err := sub.svc.orders.DeleteOrder(context.WithoutCancel(ctx), o.ID, o.UserID); err != nil {
		lg.Error("Delete order header", zap.Error(err))
		return false
	}
	lg.Info("Order header removed after items write failed")
	return true
}

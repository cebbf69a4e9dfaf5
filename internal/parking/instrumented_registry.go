package parking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parking-spots/internal/telemetry"
)

// Store is the registry surface used by the gatekeeper, the HTTP handlers
// and the shell.
type Store interface {
	List(ctx context.Context) []*Spot
	Get(ctx context.Context, id int64) (*Spot, error)
	Create(ctx context.Context, fields SpotFields) (*Spot, error)
	Update(ctx context.Context, id int64, fields SpotFields) (*Spot, error)
	Delete(ctx context.Context, id int64) error
	AppendReview(ctx context.Context, id int64, review Review) (*Spot, error)
	AppendPhoto(ctx context.Context, id int64, photo Photo) (*Spot, error)
	Admit(ctx context.Context, id int64, class VehicleClass) (AdmitResult, *Spot, error)
	Release(ctx context.Context, id int64, class VehicleClass) (*Spot, error)
	Subscribe(l Listener)
}

type InstrumentedRegistry struct {
	*Registry
	telemetry *telemetry.Provider

	// Metrics
	gateDecisions     metric.Int64Counter
	gateReleases      metric.Int64Counter
	operationDuration metric.Float64Histogram
	occupiedArea      metric.Int64ObservableGauge
	totalArea         metric.Int64ObservableGauge
}

var _ Store = (*InstrumentedRegistry)(nil)

func NewInstrumentedRegistry(registry *Registry, tp *telemetry.Provider) (*InstrumentedRegistry, error) {
	meter := tp.Meter()

	gateDecisions, err := meter.Int64Counter("gate_decisions_total",
		metric.WithDescription("Total number of gate entry decisions"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	gateReleases, err := meter.Int64Counter("gate_releases_total",
		metric.WithDescription("Total number of vehicles leaving a spot"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("spot_operation_duration_seconds",
		metric.WithDescription("Duration of spot registry operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	occupiedArea, err := meter.Int64ObservableGauge("spot_occupied_area",
		metric.WithDescription("Occupied area per parking spot"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	totalArea, err := meter.Int64ObservableGauge("spot_total_area",
		metric.WithDescription("Total area per parking spot"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	ir := &InstrumentedRegistry{
		Registry:          registry,
		telemetry:         tp,
		gateDecisions:     gateDecisions,
		gateReleases:      gateReleases,
		operationDuration: operationDuration,
		occupiedArea:      occupiedArea,
		totalArea:         totalArea,
	}

	_, err = meter.RegisterCallback(ir.observeAreas, occupiedArea, totalArea)
	if err != nil {
		return nil, err
	}

	return ir, nil
}

func (ir *InstrumentedRegistry) observeAreas(_ context.Context, o metric.Observer) error {
	for _, spot := range ir.Registry.List() {
		attrs := metric.WithAttributes(
			attribute.Int64("spot_id", spot.ID),
			attribute.String("place", spot.Place),
		)
		o.ObserveInt64(ir.occupiedArea, int64(spot.OccupiedArea), attrs)
		o.ObserveInt64(ir.totalArea, int64(spot.TotalArea), attrs)
	}
	return nil
}

func (ir *InstrumentedRegistry) List(ctx context.Context) []*Spot {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.list")
	defer span.End()

	start := time.Now()
	spots := ir.Registry.List()

	span.SetAttributes(attribute.Int("spots_count", len(spots)))
	ir.recordDuration(ctx, "list", "success", start)

	return spots
}

func (ir *InstrumentedRegistry) Get(ctx context.Context, id int64) (*Spot, error) {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.get",
		trace.WithAttributes(attribute.Int64("spot.id", id)))
	defer span.End()

	start := time.Now()
	spot, err := ir.Registry.Get(id)
	ir.finish(ctx, span, "get", start, err)

	return spot, err
}

func (ir *InstrumentedRegistry) Create(ctx context.Context, fields SpotFields) (*Spot, error) {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.create",
		trace.WithAttributes(
			attribute.String("spot.place", fields.Place),
			attribute.Int("spot.total_area", fields.TotalArea),
		))
	defer span.End()

	start := time.Now()
	spot, err := ir.Registry.Create(fields)
	if err == nil {
		span.SetAttributes(attribute.Int64("spot.id", spot.ID))
		span.AddEvent("spot_created")
	}
	ir.finish(ctx, span, "create", start, err)

	return spot, err
}

func (ir *InstrumentedRegistry) Update(ctx context.Context, id int64, fields SpotFields) (*Spot, error) {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.update",
		trace.WithAttributes(
			attribute.Int64("spot.id", id),
			attribute.Int("spot.total_area", fields.TotalArea),
		))
	defer span.End()

	start := time.Now()
	spot, err := ir.Registry.Update(id, fields)
	ir.finish(ctx, span, "update", start, err)

	return spot, err
}

func (ir *InstrumentedRegistry) Delete(ctx context.Context, id int64) error {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.delete",
		trace.WithAttributes(attribute.Int64("spot.id", id)))
	defer span.End()

	start := time.Now()
	err := ir.Registry.Delete(id)
	ir.finish(ctx, span, "delete", start, err)

	return err
}

func (ir *InstrumentedRegistry) AppendReview(ctx context.Context, id int64, review Review) (*Spot, error) {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.append_review",
		trace.WithAttributes(
			attribute.Int64("spot.id", id),
			attribute.Int("review.rating", review.Rating),
		))
	defer span.End()

	start := time.Now()
	spot, err := ir.Registry.AppendReview(id, review)
	ir.finish(ctx, span, "append_review", start, err)

	return spot, err
}

func (ir *InstrumentedRegistry) AppendPhoto(ctx context.Context, id int64, photo Photo) (*Spot, error) {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.append_photo",
		trace.WithAttributes(attribute.Int64("spot.id", id)))
	defer span.End()

	start := time.Now()
	spot, err := ir.Registry.AppendPhoto(id, photo)
	ir.finish(ctx, span, "append_photo", start, err)

	return spot, err
}

func (ir *InstrumentedRegistry) Admit(ctx context.Context, id int64, class VehicleClass) (AdmitResult, *Spot, error) {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.admit",
		trace.WithAttributes(
			attribute.Int64("spot.id", id),
			attribute.String("vehicle.class", class.String()),
		))
	defer span.End()

	start := time.Now()

	span.AddEvent("evaluating_capacity")

	result, spot, err := ir.Registry.Admit(id, class)

	duration := time.Since(start).Seconds()

	labels := []attribute.KeyValue{
		attribute.String("operation", "admit"),
		attribute.String("vehicle_class", classLabel(class)),
	}

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		labels = append(labels, attribute.String("status", "failed"))
	case result.Allowed:
		labels = append(labels, attribute.String("status", "allowed"))
		span.SetAttributes(
			attribute.Bool("gate.allowed", true),
			attribute.Int("spot.occupied_area", spot.OccupiedArea),
		)
		span.AddEvent("vehicle_admitted", trace.WithAttributes(
			attribute.Int("required_area", result.RequiredArea),
		))
	default:
		labels = append(labels,
			attribute.String("status", "denied"),
			attribute.String("reason", string(result.Reason)),
		)
		span.SetAttributes(
			attribute.Bool("gate.allowed", false),
			attribute.String("gate.deny_reason", string(result.Reason)),
		)
		span.AddEvent("vehicle_denied")
	}

	ir.gateDecisions.Add(ctx, 1, metric.WithAttributes(labels...))
	ir.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))

	return result, spot, err
}

func (ir *InstrumentedRegistry) Release(ctx context.Context, id int64, class VehicleClass) (*Spot, error) {
	ctx, span := ir.telemetry.Tracer().Start(ctx, "spot_registry.release",
		trace.WithAttributes(
			attribute.Int64("spot.id", id),
			attribute.String("vehicle.class", class.String()),
		))
	defer span.End()

	start := time.Now()

	span.AddEvent("releasing_area")

	spot, err := ir.Registry.Release(id, class)

	labels := []attribute.KeyValue{
		attribute.String("operation", "release"),
		attribute.String("vehicle_class", classLabel(class)),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		labels = append(labels, attribute.String("status", "failed"))
	} else {
		span.AddEvent("area_released")
		labels = append(labels, attribute.String("status", "success"))
	}

	ir.gateReleases.Add(ctx, 1, metric.WithAttributes(labels...))
	ir.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return spot, err
}

func (ir *InstrumentedRegistry) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status = "failed"
	}
	ir.recordDuration(ctx, op, status, start)
}

func (ir *InstrumentedRegistry) recordDuration(ctx context.Context, op, status string, start time.Time) {
	ir.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", status),
	))
}

// classLabel keeps metric label values to the known classes; anything a
// client sends that is not a class collapses into "invalid".
func classLabel(class VehicleClass) string {
	if class.Valid() {
		return class.String()
	}
	return "invalid"
}

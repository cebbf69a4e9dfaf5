package parking

import (
	"context"
	"fmt"

	"parking-spots/internal/logging"
)

// Source identifies which trigger asked for a gate decision.
type Source string

const (
	SourceGate        Source = "gate"
	SourceRecognition Source = "recognition"
	SourceShell       Source = "shell"
)

type GateAction string

const (
	GateOpen  GateAction = "OPEN"
	GateClose GateAction = "CLOSE"
)

// GateCommand is what the physical barrier is told after a decision.
type GateCommand struct {
	SpotID      int64        `json:"spotId"`
	Place       string       `json:"place"`
	Action      GateAction   `json:"command"`
	VehicleType VehicleClass `json:"vehicleType"`
	Color       string       `json:"color,omitempty"`
	Source      Source       `json:"source"`
}

// Signaler delivers gate commands to whatever drives the barrier.
type Signaler interface {
	Signal(ctx context.Context, cmd GateCommand) error
}

type EntryRequest struct {
	SpotID      int64
	VehicleType string
	Color       string
	Source      Source
}

type EntryOutcome struct {
	Allowed bool
	Message string
	Result  AdmitResult
	Spot    *Spot
}

// Gatekeeper is the single place where entry and exit requests are turned
// into registry decisions. Every trigger goes through it so the admission
// rules cannot drift between call sites; only the messages differ.
type Gatekeeper struct {
	store    Store
	signaler Signaler
}

func NewGatekeeper(store Store, signaler Signaler) *Gatekeeper {
	return &Gatekeeper{
		store:    store,
		signaler: signaler,
	}
}

func (g *Gatekeeper) Enter(ctx context.Context, req EntryRequest) (*EntryOutcome, error) {
	class := NormalizeVehicleClass(req.VehicleType)

	result, spot, err := g.store.Admit(ctx, req.SpotID, class)
	if err != nil {
		return nil, err
	}

	vehicle := NewVehicle(class, req.Color)
	outcome := &EntryOutcome{
		Allowed: result.Allowed,
		Message: entryMessage(req.Source, vehicle, result),
		Result:  result,
		Spot:    spot,
	}

	event := logging.Info(ctx).
		Str("source", string(req.Source)).
		Int64("spot_id", spot.ID).
		Str("place", spot.Place).
		Str("vehicle", vehicle.Label()).
		Int("required_area", result.RequiredArea).
		Int("available_area", result.AvailableArea)
	if result.Allowed {
		event.Msg("gate opening")
	} else {
		event.Str("reason", string(result.Reason)).Msg("entry denied")
	}

	action := GateClose
	if result.Allowed {
		action = GateOpen
	}
	g.signal(ctx, GateCommand{
		SpotID:      spot.ID,
		Place:       spot.Place,
		Action:      action,
		VehicleType: class,
		Color:       vehicle.Color,
		Source:      req.Source,
	})

	return outcome, nil
}

// Exit frees the area of a departing vehicle. Closed spots still let
// vehicles out.
func (g *Gatekeeper) Exit(ctx context.Context, req EntryRequest) (*EntryOutcome, error) {
	class := NormalizeVehicleClass(req.VehicleType)

	spot, err := g.store.Release(ctx, req.SpotID, class)
	if err != nil {
		return nil, err
	}

	vehicle := NewVehicle(class, req.Color)
	logging.Info(ctx).
		Str("source", string(req.Source)).
		Int64("spot_id", spot.ID).
		Str("place", spot.Place).
		Str("vehicle", vehicle.Label()).
		Msg("vehicle left")

	g.signal(ctx, GateCommand{
		SpotID:      spot.ID,
		Place:       spot.Place,
		Action:      GateOpen,
		VehicleType: class,
		Color:       vehicle.Color,
		Source:      req.Source,
	})

	return &EntryOutcome{
		Allowed: true,
		Message: fmt.Sprintf("Goodbye! %s left %s.", vehicle.Label(), spot.Place),
		Spot:    spot,
	}, nil
}

func (g *Gatekeeper) signal(ctx context.Context, cmd GateCommand) {
	if g.signaler == nil {
		return
	}
	if err := g.signaler.Signal(ctx, cmd); err != nil {
		logging.Warn(ctx).Err(err).
			Int64("spot_id", cmd.SpotID).
			Str("command", string(cmd.Action)).
			Msg("gate signal failed")
	}
}

func entryMessage(source Source, vehicle *Vehicle, result AdmitResult) string {
	if result.Reason == ReasonClosed {
		return "Parking is Closed"
	}

	switch source {
	case SourceRecognition:
		if result.Allowed {
			return fmt.Sprintf("Welcome! Gate Opening for %s.", vehicle.Label())
		}
		return fmt.Sprintf("Parking Full for %s.", vehicle.Class)
	default:
		if result.Allowed {
			return fmt.Sprintf("Welcome! Gate Opening for %s.", vehicle.Class)
		}
		return fmt.Sprintf("Parking Full for %s. Required: %d, Available: %d",
			vehicle.Class, result.RequiredArea, result.AvailableArea)
	}
}

package parking

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parking-spots/internal/telemetry"
)

// InstrumentedShell is a line oriented operator console over the same
// store and gatekeeper the HTTP server uses.
type InstrumentedShell struct {
	store      Store
	gatekeeper *Gatekeeper
	detector   Detector
	scanner    *bufio.Scanner
	out        io.Writer
	telemetry  *telemetry.Provider
}

func NewInstrumentedShell(store Store, gatekeeper *Gatekeeper, detector Detector, tp *telemetry.Provider, in io.Reader, out io.Writer) *InstrumentedShell {
	return &InstrumentedShell{
		store:      store,
		gatekeeper: gatekeeper,
		detector:   detector,
		scanner:    bufio.NewScanner(in),
		out:        out,
		telemetry:  tp,
	}
}

func (s *InstrumentedShell) Run(ctx context.Context) {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")

	for ctx.Err() == nil {
		if !s.scanner.Scan() {
			break
		}

		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}

		// Create a new span for each command
		cmdCtx, cmdSpan := tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))

		s.processCommand(cmdCtx, input)
		cmdSpan.End()
	}

	span.AddEvent("shell_ended")
}

func (s *InstrumentedShell) processCommand(ctx context.Context, input string) {
	span := trace.SpanFromContext(ctx)

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	command := parts[0]
	span.SetAttributes(attribute.String("command.name", command))

	switch command {
	case "create_spot":
		s.handleCreateSpot(ctx, parts)
	case "list":
		s.handleList(ctx)
	case "status":
		s.handleStatus(ctx, parts)
	case "enter":
		s.handleEnter(ctx, parts)
	case "exit":
		s.handleExit(ctx, parts)
	case "scan":
		s.handleScan(ctx, parts)
	case "open", "close":
		s.handleSetOpen(ctx, parts, command == "open")
	case "set_area":
		s.handleSetArea(ctx, parts)
	default:
		span.AddEvent("unknown_command", trace.WithAttributes(
			attribute.String("unknown_command", command),
		))
		s.printf("Unknown command: %s\n", command)
	}
}

func (s *InstrumentedShell) handleCreateSpot(ctx context.Context, parts []string) {
	ctx, span := s.telemetry.Tracer().Start(ctx, "shell.create_spot")
	defer span.End()

	if len(parts) < 3 {
		span.AddEvent("invalid_arguments")
		s.printf("Usage: create_spot <total_area> <place>\n")
		return
	}

	totalArea, err := strconv.Atoi(parts[1])
	if err != nil || totalArea < 0 {
		span.RecordError(fmt.Errorf("invalid total area: %s", parts[1]))
		s.printf("Invalid total area\n")
		return
	}

	spot, err := s.store.Create(ctx, SpotFields{
		Place:     strings.Join(parts[2:], " "),
		TotalArea: totalArea,
	})
	if err != nil {
		span.RecordError(err)
		s.printf("Error: %s\n", err)
		return
	}

	span.AddEvent("spot_created", trace.WithAttributes(attribute.Int64("spot.id", spot.ID)))
	s.printf("Created spot %d (%s) with %d area units\n", spot.ID, spot.Place, spot.TotalArea)
}

func (s *InstrumentedShell) handleList(ctx context.Context) {
	spots := s.store.List(ctx)
	if len(spots) == 0 {
		s.printf("No parking spots\n")
		return
	}

	s.printf("ID\tPlace\tOpen\tOccupied/Total\tAvailable\n")
	for _, spot := range spots {
		s.printf("%d\t%s\t%t\t%d/%d\t%s\n",
			spot.ID, spot.Place, spot.IsOpen, spot.OccupiedArea, spot.TotalArea, availableClasses(spot))
	}
}

func (s *InstrumentedShell) handleStatus(ctx context.Context, parts []string) {
	id, ok := s.parseID(parts, "Usage: status <spot_id>")
	if !ok {
		return
	}

	spot, err := s.store.Get(ctx, id)
	if err != nil {
		s.printf("Not found\n")
		return
	}

	s.printf("%s, %s\n", spot.Place, spot.Location)
	s.printf("Open: %t\tOccupied: %d/%d\tFree: %d\n", spot.IsOpen, spot.OccupiedArea, spot.TotalArea, spot.FreeArea())
	s.printf("Available for: %s\n", availableClasses(spot))
}

func (s *InstrumentedShell) handleEnter(ctx context.Context, parts []string) {
	ctx, span := s.telemetry.Tracer().Start(ctx, "shell.enter_command")
	defer span.End()

	if len(parts) != 3 {
		span.AddEvent("invalid_arguments")
		s.printf("Usage: enter <spot_id> <vehicle_type>\n")
		return
	}

	id, ok := s.parseID(parts, "")
	if !ok {
		return
	}

	s.enter(ctx, EntryRequest{SpotID: id, VehicleType: parts[2], Source: SourceShell})
}

func (s *InstrumentedShell) handleExit(ctx context.Context, parts []string) {
	ctx, span := s.telemetry.Tracer().Start(ctx, "shell.exit_command")
	defer span.End()

	if len(parts) != 3 {
		span.AddEvent("invalid_arguments")
		s.printf("Usage: exit <spot_id> <vehicle_type>\n")
		return
	}

	id, ok := s.parseID(parts, "")
	if !ok {
		return
	}

	outcome, err := s.gatekeeper.Exit(ctx, EntryRequest{SpotID: id, VehicleType: parts[2], Source: SourceShell})
	if err != nil {
		span.AddEvent("exit_failed")
		s.printError(err)
		return
	}

	s.printf("%s\n", outcome.Message)
}

// handleScan runs the detector and feeds its label through the recognition
// entry path, like a camera at the gate would.
func (s *InstrumentedShell) handleScan(ctx context.Context, parts []string) {
	ctx, span := s.telemetry.Tracer().Start(ctx, "shell.scan_command")
	defer span.End()

	if len(parts) < 2 || len(parts) > 3 {
		span.AddEvent("invalid_arguments")
		s.printf("Usage: scan <spot_id> [color]\n")
		return
	}

	id, ok := s.parseID(parts, "")
	if !ok {
		return
	}

	color := ""
	if len(parts) == 3 {
		color = parts[2]
	}

	class, err := s.detector.Detect(ctx)
	if err != nil {
		span.RecordError(err)
		s.printf("Detection failed: %s\n", err)
		return
	}

	span.SetAttributes(attribute.String("vehicle.detected_class", class.String()))
	s.printf("Detected: %s\n", class)
	s.enter(ctx, EntryRequest{SpotID: id, VehicleType: class.String(), Color: color, Source: SourceRecognition})
}

func (s *InstrumentedShell) handleSetOpen(ctx context.Context, parts []string, open bool) {
	id, ok := s.parseID(parts, fmt.Sprintf("Usage: %s <spot_id>", parts[0]))
	if !ok {
		return
	}

	s.editSpot(ctx, id, func(fields *SpotFields) {
		fields.IsOpen = &open
	})
}

func (s *InstrumentedShell) handleSetArea(ctx context.Context, parts []string) {
	if len(parts) != 3 {
		s.printf("Usage: set_area <spot_id> <total_area>\n")
		return
	}

	id, ok := s.parseID(parts, "")
	if !ok {
		return
	}

	totalArea, err := strconv.Atoi(parts[2])
	if err != nil || totalArea < 0 {
		s.printf("Invalid total area\n")
		return
	}

	s.editSpot(ctx, id, func(fields *SpotFields) {
		fields.TotalArea = totalArea
	})
}

func (s *InstrumentedShell) editSpot(ctx context.Context, id int64, edit func(*SpotFields)) {
	spot, err := s.store.Get(ctx, id)
	if err != nil {
		s.printf("Not found\n")
		return
	}

	fields := SpotFields{
		Place:     spot.Place,
		Location:  spot.Location,
		TotalArea: spot.TotalArea,
	}
	edit(&fields)

	updated, err := s.store.Update(ctx, id, fields)
	if err != nil {
		s.printError(err)
		return
	}

	s.printf("Spot %d: open=%t occupied=%d/%d\n", updated.ID, updated.IsOpen, updated.OccupiedArea, updated.TotalArea)
}

func (s *InstrumentedShell) enter(ctx context.Context, req EntryRequest) {
	span := trace.SpanFromContext(ctx)

	outcome, err := s.gatekeeper.Enter(ctx, req)
	if err != nil {
		span.AddEvent("entry_failed")
		s.printError(err)
		return
	}

	span.AddEvent("entry_decided", trace.WithAttributes(
		attribute.Bool("gate.allowed", outcome.Allowed),
	))
	s.printf("%s\n", outcome.Message)
}

func (s *InstrumentedShell) parseID(parts []string, usage string) (int64, bool) {
	if len(parts) < 2 {
		s.printf("%s\n", usage)
		return 0, false
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		s.printf("Invalid spot id\n")
		return 0, false
	}
	return id, true
}

func (s *InstrumentedShell) printError(err error) {
	switch {
	case errors.Is(err, ErrSpotNotFound):
		s.printf("Spot not found\n")
	case errors.Is(err, ErrInvalidVehicleClass):
		s.printf("Invalid vehicle type\n")
	case errors.Is(err, ErrNothingToRelease):
		s.printf("No such vehicle parked\n")
	default:
		s.printf("Error: %s\n", err)
	}
}

func (s *InstrumentedShell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func availableClasses(spot *Spot) string {
	var classes []string
	for class, ok := range spot.Availability {
		if ok {
			classes = append(classes, class.String())
		}
	}
	if len(classes) == 0 {
		return "-"
	}
	sort.Strings(classes)
	return strings.Join(classes, ",")
}

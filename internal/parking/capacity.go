package parking

type DenyReason string

const (
	ReasonNone             DenyReason = ""
	ReasonClosed           DenyReason = "closed"
	ReasonInsufficientArea DenyReason = "insufficient_area"
)

// AdmitResult is the outcome of an entry attempt. A denial is a normal
// result, not an error.
type AdmitResult struct {
	Allowed       bool         `json:"allowed"`
	Reason        DenyReason   `json:"reason,omitempty"`
	Vehicle       VehicleClass `json:"vehicleType"`
	RequiredArea  int          `json:"requiredArea"`
	AvailableArea int          `json:"availableArea"`
}

// RecomputeAvailability overwrites spot.Availability from the current
// total and occupied area.
func RecomputeAvailability(spot *Spot) {
	free := spot.FreeArea()
	availability := make(Availability, len(vehicleCosts))
	for class, cost := range vehicleCosts {
		availability[class] = free >= cost
	}
	spot.Availability = availability
}

// TryAdmitVehicle admits one vehicle of the given class if the spot is open
// and its free area covers the class cost. The spot is mutated only on
// admission. An unknown class leaves the spot untouched and returns
// ErrInvalidVehicleClass.
func TryAdmitVehicle(spot *Spot, class VehicleClass) (AdmitResult, error) {
	cost, ok := class.Cost()
	if !ok {
		return AdmitResult{}, invalidVehicleClass(string(class))
	}

	free := spot.FreeArea()
	result := AdmitResult{
		Vehicle:       class,
		RequiredArea:  cost,
		AvailableArea: free,
	}

	if !spot.IsOpen {
		result.Reason = ReasonClosed
		return result, nil
	}

	// Exact fit is admitted.
	if free < cost {
		result.Reason = ReasonInsufficientArea
		return result, nil
	}

	spot.OccupiedArea += cost
	RecomputeAvailability(spot)
	result.Allowed = true
	return result, nil
}

// ReleaseVehicle frees the area of one departing vehicle. Occupied area
// never drops below zero.
func ReleaseVehicle(spot *Spot, class VehicleClass) error {
	cost, ok := class.Cost()
	if !ok {
		return invalidVehicleClass(string(class))
	}

	if spot.OccupiedArea < cost {
		return ErrNothingToRelease
	}

	spot.OccupiedArea -= cost
	RecomputeAvailability(spot)
	return nil
}

package parking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSpot(total, occupied int, open bool) *Spot {
	spot := NewSpot(1, SpotFields{Place: "Test", TotalArea: total, IsOpen: &open})
	spot.OccupiedArea = occupied
	RecomputeAvailability(spot)
	return spot
}

func TestRecomputeAvailabilityMatchesFreeArea(t *testing.T) {
	for total := 0; total <= 60; total += 3 {
		for occupied := 0; occupied <= total; occupied += 2 {
			spot := newTestSpot(total, occupied, true)
			for _, class := range VehicleClasses() {
				cost, _ := class.Cost()
				assert.Equal(t, total-occupied >= cost, spot.Availability[class],
					"total=%d occupied=%d class=%s", total, occupied, class)
			}
		}
	}
}

func TestRecomputeAvailabilityIsIdempotent(t *testing.T) {
	spot := newTestSpot(300, 280, true)
	first := spot.Clone().Availability

	RecomputeAvailability(spot)
	RecomputeAvailability(spot)

	assert.Equal(t, first, spot.Availability)
}

func TestTryAdmitBikeIntoEmptySpot(t *testing.T) {
	spot := newTestSpot(25, 0, true)

	result, err := TryAdmitVehicle(spot, Bike)
	require.NoError(t, err)

	assert.True(t, result.Allowed)
	assert.Equal(t, 2, spot.OccupiedArea)
	assert.Equal(t, Availability{Bike: true, Car: true, Van: true, Bus: false}, spot.Availability)
}

func TestTryAdmitCarFillsMarketSquare(t *testing.T) {
	spot := newTestSpot(300, 280, true)

	result, err := TryAdmitVehicle(spot, Car)
	require.NoError(t, err)

	assert.True(t, result.Allowed, "exact fit must be admitted")
	assert.Equal(t, 300, spot.OccupiedArea)
	assert.Equal(t, 0, spot.FreeArea())
	for _, class := range VehicleClasses() {
		assert.False(t, spot.Availability[class], class)
	}
}

func TestTryAdmitBusDeniedWhenTooLarge(t *testing.T) {
	spot := newTestSpot(300, 280, true)

	result, err := TryAdmitVehicle(spot, Bus)
	require.NoError(t, err)

	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonInsufficientArea, result.Reason)
	assert.Equal(t, 25, result.RequiredArea)
	assert.Equal(t, 20, result.AvailableArea)
	assert.Equal(t, 280, spot.OccupiedArea)
}

func TestTryAdmitUnknownClassLeavesSpotUntouched(t *testing.T) {
	spot := newTestSpot(25, 4, true)
	before := spot.Clone()

	_, err := TryAdmitVehicle(spot, VehicleClass("truck"))
	assert.ErrorIs(t, err, ErrInvalidVehicleClass)
	assert.Equal(t, before, spot)
}

func TestTryAdmitClosedSpotAlwaysDenies(t *testing.T) {
	for _, occupied := range []int{0, 500, 1000} {
		spot := newTestSpot(1000, occupied, false)
		for _, class := range VehicleClasses() {
			result, err := TryAdmitVehicle(spot, class)
			require.NoError(t, err)
			assert.False(t, result.Allowed)
			assert.Equal(t, ReasonClosed, result.Reason)
			assert.Equal(t, occupied, spot.OccupiedArea)
		}
	}
}

func TestTryAdmitNeverExceedsTotalArea(t *testing.T) {
	spot := newTestSpot(97, 0, true)
	classes := VehicleClasses()

	for i := 0; i < 200; i++ {
		_, err := TryAdmitVehicle(spot, classes[i%len(classes)])
		require.NoError(t, err)
		require.LessOrEqual(t, spot.OccupiedArea, spot.TotalArea)
	}
	// A bike is tried every cycle, so the spot ends below the smallest cost.
	assert.Less(t, spot.FreeArea(), 2)
}

func TestReleaseVehicle(t *testing.T) {
	spot := newTestSpot(25, 20, true)

	require.NoError(t, ReleaseVehicle(spot, Car))
	assert.Equal(t, 0, spot.OccupiedArea)
	assert.True(t, spot.Availability[Bus])

	assert.ErrorIs(t, ReleaseVehicle(spot, Bike), ErrNothingToRelease)
	assert.Equal(t, 0, spot.OccupiedArea)

	assert.ErrorIs(t, ReleaseVehicle(spot, VehicleClass("truck")), ErrInvalidVehicleClass)
}

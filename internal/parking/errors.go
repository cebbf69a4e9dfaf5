package parking

import (
	"errors"
	"fmt"
)

var (
	ErrSpotNotFound        = errors.New("spot not found")
	ErrInvalidVehicleClass = errors.New("invalid vehicle type")
	ErrNothingToRelease    = errors.New("no such vehicle parked")
	ErrInvalidSpot         = errors.New("invalid spot")
	ErrInvalidReview       = errors.New("invalid review")
)

func spotNotFound(id int64) error {
	return fmt.Errorf("%w: %d", ErrSpotNotFound, id)
}

func invalidVehicleClass(label string) error {
	return fmt.Errorf("%w: %q", ErrInvalidVehicleClass, label)
}

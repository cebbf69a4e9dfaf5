package parking

import (
	"strings"
)

type VehicleClass string

const (
	Bike VehicleClass = "bike"
	Car  VehicleClass = "car"
	Van  VehicleClass = "van"
	Bus  VehicleClass = "bus"
)

// vehicleCosts is the area consumed by one vehicle of each class.
var vehicleCosts = map[VehicleClass]int{
	Bike: 2,
	Car:  20,
	Van:  15,
	Bus:  25,
}

// VehicleClasses lists every known class in display order.
func VehicleClasses() []VehicleClass {
	return []VehicleClass{Bike, Car, Van, Bus}
}

// NormalizeVehicleClass lowercases and trims a client supplied label. The
// result is not validated; use Cost or ParseVehicleClass for that.
func NormalizeVehicleClass(label string) VehicleClass {
	return VehicleClass(strings.ToLower(strings.TrimSpace(label)))
}

func ParseVehicleClass(label string) (VehicleClass, error) {
	class := NormalizeVehicleClass(label)
	if !class.Valid() {
		return "", invalidVehicleClass(label)
	}
	return class, nil
}

func (c VehicleClass) Cost() (int, bool) {
	cost, ok := vehicleCosts[c]
	return cost, ok
}

func (c VehicleClass) Valid() bool {
	_, ok := vehicleCosts[c]
	return ok
}

func (c VehicleClass) String() string {
	return string(c)
}

// Vehicle is a detected or announced vehicle at a gate.
type Vehicle struct {
	Class VehicleClass
	Color string
}

func NewVehicle(class VehicleClass, color string) *Vehicle {
	return &Vehicle{
		Class: class,
		Color: strings.TrimSpace(color),
	}
}

// Label is the human readable form used in gate messages, e.g. "red car".
func (v *Vehicle) Label() string {
	if v.Color == "" {
		return v.Class.String()
	}
	return v.Color + " " + v.Class.String()
}

package parking

import (
	"context"
	"crypto/rand"
	"math/big"
)

// Detector classifies the vehicle currently in front of a gate camera.
type Detector interface {
	Detect(ctx context.Context) (VehicleClass, error)
}

// RandomDetector stands in for a recognition model: every call returns a
// uniformly random class. It keeps no state.
type RandomDetector struct{}

func NewRandomDetector() *RandomDetector {
	return &RandomDetector{}
}

func (d *RandomDetector) Detect(ctx context.Context) (VehicleClass, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	classes := VehicleClasses()
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(classes))))
	if err != nil {
		return "", err
	}
	return classes[n.Int64()], nil
}

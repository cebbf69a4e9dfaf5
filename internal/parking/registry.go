package parking

import (
	"strings"
	"sync"
	"time"
)

type EventType string

const (
	EventSpotCreated EventType = "spot.created"
	EventSpotUpdated EventType = "spot.updated"
	EventSpotDeleted EventType = "spot.deleted"
	EventEntry       EventType = "spot.entry"
	EventExit        EventType = "spot.exit"
	EventReview      EventType = "spot.review"
	EventPhoto       EventType = "spot.photo"
)

// SpotEvent describes a change to the registry. Spot is nil for deletions.
type SpotEvent struct {
	Type   EventType `json:"type"`
	SpotID int64     `json:"spotId"`
	Spot   *Spot     `json:"spot,omitempty"`
}

type Listener func(SpotEvent)

// Registry is the in-memory, ordered set of parking spots. Every
// read-modify-write runs under mu, so concurrent entries on one spot never
// lose updates. Reads hand out clones.
type Registry struct {
	mu        sync.RWMutex
	spots     []*Spot
	lastID    int64
	listeners []Listener
	now       func() time.Time
}

func NewRegistry(seed ...*Spot) *Registry {
	r := &Registry{
		spots: make([]*Spot, 0, len(seed)),
		now:   time.Now,
	}

	var maxID int64
	for _, s := range seed {
		spot := s.Clone()
		RecomputeAvailability(spot)
		r.spots = append(r.spots, spot)
		maxID = max(maxID, spot.ID)
	}
	r.lastID = maxID

	return r
}

// SeedSpots returns the demo locations the service starts with.
func SeedSpots() []*Spot {
	closed := false
	sunset := NewSpot(1, SpotFields{Place: "Sunset Point", Location: "Hill Top Road, Sector 4", TotalArea: 25})
	market := NewSpot(2, SpotFields{Place: "Market Square", Location: "Main Bazaar, City Center", TotalArea: 300})
	market.OccupiedArea = 280
	RecomputeAvailability(market)
	river := NewSpot(3, SpotFields{Place: "River Side", Location: "River Bank, Near Bridge", TotalArea: 1000, IsOpen: &closed})

	return []*Spot{sunset, market, river}
}

// Subscribe registers l to receive every change. Listeners run while the
// registry lock is held, so events arrive in mutation order; a listener
// must not block or call back into the registry.
func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) List() []*Spot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spots := make([]*Spot, len(r.spots))
	for i, s := range r.spots {
		spots[i] = s.Clone()
	}
	return spots
}

func (r *Registry) Get(id int64) (*Spot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spot, _ := r.find(id)
	if spot == nil {
		return nil, spotNotFound(id)
	}
	return spot.Clone(), nil
}

func (r *Registry) Create(fields SpotFields) (*Spot, error) {
	if err := fields.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	spot := NewSpot(r.lastID, fields)
	r.spots = append(r.spots, spot)

	r.notify(SpotEvent{Type: EventSpotCreated, SpotID: spot.ID, Spot: spot.Clone()})
	return spot.Clone(), nil
}

// Update replaces the editable fields of a spot. Occupied area, reviews and
// photos are kept; availability is recomputed against the new total.
func (r *Registry) Update(id int64, fields SpotFields) (*Spot, error) {
	if err := fields.validate(); err != nil {
		return nil, err
	}

	return r.mutate(id, EventSpotUpdated, func(spot *Spot) error {
		spot.apply(fields)
		return nil
	})
}

func (r *Registry) Delete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, idx := r.find(id)
	if idx < 0 {
		return spotNotFound(id)
	}
	r.spots = append(r.spots[:idx], r.spots[idx+1:]...)

	r.notify(SpotEvent{Type: EventSpotDeleted, SpotID: id})
	return nil
}

func (r *Registry) AppendReview(id int64, review Review) (*Spot, error) {
	if review.Rating < 1 || review.Rating > 5 {
		return nil, ErrInvalidReview
	}
	review.Author = strings.TrimSpace(review.Author)
	if review.Timestamp.IsZero() {
		review.Timestamp = r.now().UTC()
	}

	return r.mutate(id, EventReview, func(spot *Spot) error {
		spot.Reviews = append(spot.Reviews, review)
		return nil
	})
}

func (r *Registry) AppendPhoto(id int64, photo Photo) (*Spot, error) {
	if strings.TrimSpace(photo.URL) == "" {
		return nil, ErrInvalidSpot
	}
	if photo.Timestamp.IsZero() {
		photo.Timestamp = r.now().UTC()
	}

	return r.mutate(id, EventPhoto, func(spot *Spot) error {
		spot.Images = append(spot.Images, photo)
		return nil
	})
}

// Admit runs TryAdmitVehicle against the stored spot. The returned snapshot
// reflects the spot after the decision, whether or not the vehicle entered.
func (r *Registry) Admit(id int64, class VehicleClass) (AdmitResult, *Spot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spot, _ := r.find(id)
	if spot == nil {
		return AdmitResult{}, nil, spotNotFound(id)
	}

	result, err := TryAdmitVehicle(spot, class)
	if err != nil {
		return AdmitResult{}, nil, err
	}

	if result.Allowed {
		r.notify(SpotEvent{Type: EventEntry, SpotID: id, Spot: spot.Clone()})
	}
	return result, spot.Clone(), nil
}

func (r *Registry) Release(id int64, class VehicleClass) (*Spot, error) {
	return r.mutate(id, EventExit, func(spot *Spot) error {
		return ReleaseVehicle(spot, class)
	})
}

func (r *Registry) mutate(id int64, event EventType, fn func(*Spot) error) (*Spot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spot, _ := r.find(id)
	if spot == nil {
		return nil, spotNotFound(id)
	}
	if err := fn(spot); err != nil {
		return nil, err
	}

	r.notify(SpotEvent{Type: event, SpotID: id, Spot: spot.Clone()})
	return spot.Clone(), nil
}

// find must be called with mu held.
func (r *Registry) find(id int64) (*Spot, int) {
	for i, s := range r.spots {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

// notify must be called with mu held.
func (r *Registry) notify(event SpotEvent) {
	for _, l := range r.listeners {
		l(event)
	}
}

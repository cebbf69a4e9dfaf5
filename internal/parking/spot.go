package parking

import (
	"slices"
	"time"
)

// Availability maps each vehicle class to whether one more vehicle of that
// class fits in the spot's free area.
type Availability map[VehicleClass]bool

type Review struct {
	Author    string    `json:"user"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"date"`
}

type Photo struct {
	URL       string    `json:"url"`
	Author    string    `json:"user"`
	Timestamp time.Time `json:"date"`
}

type Spot struct {
	ID           int64        `json:"id"`
	Place        string       `json:"place"`
	Location     string       `json:"location"`
	IsOpen       bool         `json:"isOpen"`
	TotalArea    int          `json:"totalArea"`
	OccupiedArea int          `json:"occupiedArea"`
	Availability Availability `json:"availability"`
	Reviews      []Review     `json:"reviews"`
	Images       []Photo      `json:"images"`
}

// SpotFields are the admin editable attributes of a spot. A nil IsOpen
// means "keep the current value", or open for a new spot.
type SpotFields struct {
	Place     string
	Location  string
	TotalArea int
	IsOpen    *bool
}

func (f SpotFields) validate() error {
	if f.Place == "" {
		return ErrInvalidSpot
	}
	if f.TotalArea < 0 {
		return ErrInvalidSpot
	}
	return nil
}

func NewSpot(id int64, fields SpotFields) *Spot {
	isOpen := true
	if fields.IsOpen != nil {
		isOpen = *fields.IsOpen
	}

	spot := &Spot{
		ID:        id,
		Place:     fields.Place,
		Location:  fields.Location,
		IsOpen:    isOpen,
		TotalArea: fields.TotalArea,
		Reviews:   []Review{},
		Images:    []Photo{},
	}
	RecomputeAvailability(spot)
	return spot
}

func (s *Spot) FreeArea() int {
	return s.TotalArea - s.OccupiedArea
}

// Clone returns a deep copy safe to hand out while the original keeps
// being mutated under the registry lock.
func (s *Spot) Clone() *Spot {
	c := *s
	c.Availability = make(Availability, len(s.Availability))
	for class, ok := range s.Availability {
		c.Availability[class] = ok
	}
	c.Reviews = slices.Clone(s.Reviews)
	if c.Reviews == nil {
		c.Reviews = []Review{}
	}
	c.Images = slices.Clone(s.Images)
	if c.Images == nil {
		c.Images = []Photo{}
	}
	return &c
}

func (s *Spot) apply(fields SpotFields) {
	s.Place = fields.Place
	s.Location = fields.Location
	s.TotalArea = fields.TotalArea
	if fields.IsOpen != nil {
		s.IsOpen = *fields.IsOpen
	}
	RecomputeAvailability(s)
}

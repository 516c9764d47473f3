package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/surveytools/cogo/model"
)

var (
	// ErrPointExists is returned when a point id is reduced twice from the
	// same station.
	ErrPointExists = errors.New("point already exists")
	// ErrStationNotFound is returned when a point references an unknown
	// station.
	ErrStationNotFound = errors.New("station not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventStationSet EventType = iota
	EventPointReduced
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type    EventType
	Station model.BaseStation
	Point   model.ReducedPoint
}

type pointKey struct {
	station string
	id      string
}

// KnowledgeBase is an in-memory, thread-safe store of base stations and
// the points reduced from them.
type KnowledgeBase struct {
	mu sync.RWMutex

	stations     map[string]model.BaseStation
	stationOrder []string

	points     map[pointKey]int
	pointOrder []model.ReducedPoint

	subs   []subscriber
	nextID int
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		stations: make(map[string]model.BaseStation),
		points:   make(map[pointKey]int),
	}
}

// SetStation records a station setup, replacing an earlier setup with the
// same code (a re-occupation).
func (kb *KnowledgeBase) SetStation(s model.BaseStation) {
	kb.mu.Lock()
	if _, exists := kb.stations[s.Code]; !exists {
		kb.stationOrder = append(kb.stationOrder, s.Code)
	}
	kb.stations[s.Code] = s
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	kb.notify(subs, Event{Type: EventStationSet, Station: s})
}

// GetStation returns the station with the given code.
func (kb *KnowledgeBase) GetStation(code string) (model.BaseStation, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.stations[code]
	return s, ok
}

// ListStations returns the stations in the order they were first set.
func (kb *KnowledgeBase) ListStations() []model.BaseStation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.BaseStation, 0, len(kb.stationOrder))
	for _, code := range kb.stationOrder {
		res = append(res, kb.stations[code])
	}
	return res
}

// AddPoint stores a reduced point. The point's station must already be
// known and the (station, id) pair must be new.
func (kb *KnowledgeBase) AddPoint(p model.ReducedPoint) error {
	kb.mu.Lock()
	if _, ok := kb.stations[p.StationCode]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q for point %q", ErrStationNotFound, p.StationCode, p.ID)
	}
	key := pointKey{station: p.StationCode, id: p.ID}
	if _, exists := kb.points[key]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q from station %q", ErrPointExists, p.ID, p.StationCode)
	}
	kb.points[key] = len(kb.pointOrder)
	kb.pointOrder = append(kb.pointOrder, p)
	subs := kb.snapshotSubs()
	kb.mu.Unlock()

	kb.notify(subs, Event{Type: EventPointReduced, Point: p})
	return nil
}

// GetPoint returns a point by station code and id.
func (kb *KnowledgeBase) GetPoint(stationCode, id string) (model.ReducedPoint, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	i, ok := kb.points[pointKey{station: stationCode, id: id}]
	if !ok {
		return model.ReducedPoint{}, false
	}
	return kb.pointOrder[i], true
}

// ListPoints returns a snapshot of all points in insertion order.
func (kb *KnowledgeBase) ListPoints() []model.ReducedPoint {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]model.ReducedPoint(nil), kb.pointOrder...)
}

// Subscribe registers a callback for KB events. It returns an unsubscribe
// function; calling it more than once is a no-op.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.nextID++
	id := kb.nextID
	kb.subs = append(kb.subs, subscriber{id: id, fn: fn})

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		for i, sub := range kb.subs {
			if sub.id == id {
				kb.subs = append(kb.subs[:i:i], kb.subs[i+1:]...)
				return
			}
		}
	}
}

// snapshotSubs copies the subscriber callbacks; the caller holds the lock.
func (kb *KnowledgeBase) snapshotSubs() []func(Event) {
	out := make([]func(Event), len(kb.subs))
	for i, sub := range kb.subs {
		out[i] = sub.fn
	}
	return out
}

// notify runs subscribers outside the lock so they may call back into the KB.
func (kb *KnowledgeBase) notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}

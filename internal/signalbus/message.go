// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package signalbus

import (
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geo"
)

// Message is the JSON representation of an Event published to remote observers.
type Message struct {
	Kind      string           `json:"kind"`
	Source    string           `json:"source"`
	Status    string           `json:"status,omitempty"`
	Update    string           `json:"update,omitempty"`
	Error     string           `json:"error,omitempty"`
	Position  *fix.Position    `json:"position,omitempty"`
	Velocity  *fix.Velocity    `json:"velocity,omitempty"`
	Accuracy  *fix.Accuracy    `json:"accuracy,omitempty"`
	Satellite *fix.Satellite   `json:"satellite,omitempty"`
	Boundary  *BoundaryMessage `json:"boundary,omitempty"`
	Count     int              `json:"count,omitempty"`
}

// BoundaryMessage is the JSON representation of a geo.Boundary.
type BoundaryMessage struct {
	Shape       string      `json:"shape"`
	Center      *geo.Point  `json:"center,omitempty"`
	Radius      float64     `json:"radius,omitempty"`
	LeftTop     *geo.Point  `json:"left_top,omitempty"`
	RightBottom *geo.Point  `json:"right_bottom,omitempty"`
	Points      []geo.Point `json:"points,omitempty"`
}

// Message converts e into its JSON representation. Only the fields belonging to the event kind are set.
func (e Event) Message() Message {
	m := Message{Kind: e.Kind.String(), Source: e.Source}
	switch e.Kind {
	case KindEnabled, KindDisabled, KindStatusChanged:
		m.Status = e.Status.String()
	case KindUpdated:
		m.Update = e.Update.String()
		if e.Update.Has(UpdateSatellite) {
			sat := e.Satellite.Clone()
			m.Satellite = &sat
		}
		if e.Update&^UpdateSatellite != 0 {
			m.setSample(e)
		}
	case KindLocationUpdated:
		if e.Err != nil {
			m.Error = e.Err.Error()
		}
		m.setSample(e)
	case KindZoneIn, KindZoneOut:
		pos, acc := e.Position, e.Accuracy
		m.Position, m.Accuracy = &pos, &acc
		m.Boundary = boundaryMessage(e.Boundary)
	case KindBatchUpdated:
		m.Count = e.Count
	}
	return m
}

func (m *Message) setSample(e Event) {
	pos, vel, acc := e.Position, e.Velocity, e.Accuracy
	m.Position, m.Velocity, m.Accuracy = &pos, &vel, &acc
}

func boundaryMessage(b geo.Boundary) *BoundaryMessage {
	bm := &BoundaryMessage{Shape: b.Shape.String()}
	switch b.Shape {
	case geo.ShapeCircle:
		center := b.Center
		bm.Center, bm.Radius = &center, b.Radius
	case geo.ShapeRect:
		lt, rb := b.LeftTop, b.RightBottom
		bm.LeftTop, bm.RightBottom = &lt, &rb
	case geo.ShapePolygon:
		bm.Points = append([]geo.Point(nil), b.Points...)
	}
	return bm
}

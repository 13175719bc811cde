// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geofence loads boundary definitions from a YAML document.
//
// A document lists boundaries under the "boundaries" key. Each entry sets exactly one of "circle", "rect"
// or "polygon":
//
//	boundaries:
//	  - name: office
//	    circle: {center: {lat: 37.5, lon: 127.0}, radius: 150}
//	  - name: campus
//	    rect: {left_top: {lat: 37.6, lon: 126.9}, right_bottom: {lat: 37.4, lon: 127.1}}
//	  - name: park
//	    polygon: [{lat: 0, lon: 0}, {lat: 0, lon: 1}, {lat: 1, lon: 1}]
package geofence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wneessen/locationd/internal/geo"
)

var ErrAmbiguousShape = errors.New("boundary must define exactly one of circle, rect or polygon")

// Fence is a named boundary.
type Fence struct {
	Name     string
	Boundary geo.Boundary
}

type document struct {
	Boundaries []entry `yaml:"boundaries"`
}

type entry struct {
	Name   string `yaml:"name"`
	Circle *struct {
		Center geo.Point `yaml:"center"`
		Radius float64   `yaml:"radius"`
	} `yaml:"circle"`
	Rect *struct {
		LeftTop     geo.Point `yaml:"left_top"`
		RightBottom geo.Point `yaml:"right_bottom"`
	} `yaml:"rect"`
	Polygon []geo.Point `yaml:"polygon"`
}

// LoadFile reads and parses the boundary file at path.
func LoadFile(path string) ([]Fence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geofence file %q: %w", path, err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a boundary document from r.
func Parse(r io.Reader) ([]Fence, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode geofence document: %w", err)
	}

	fences := make([]Fence, 0, len(doc.Boundaries))
	for i, e := range doc.Boundaries {
		b, err := e.boundary()
		if err != nil {
			return nil, fmt.Errorf("boundary %d (%s): %w", i, e.Name, err)
		}
		fences = append(fences, Fence{Name: e.Name, Boundary: b})
	}
	return fences, nil
}

func (e entry) boundary() (geo.Boundary, error) {
	shapes := 0
	if e.Circle != nil {
		shapes++
	}
	if e.Rect != nil {
		shapes++
	}
	if len(e.Polygon) > 0 {
		shapes++
	}
	if shapes != 1 {
		return geo.Boundary{}, ErrAmbiguousShape
	}

	switch {
	case e.Circle != nil:
		return geo.NewCircle(e.Circle.Center, e.Circle.Radius)
	case e.Rect != nil:
		return geo.NewRect(e.Rect.LeftTop, e.Rect.RightBottom)
	default:
		return geo.NewPolygon(e.Polygon)
	}
}

// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geo

import (
	"fmt"
	"slices"
)

// Shape identifies the geometry of a Boundary.
type Shape int

const (
	ShapeCircle Shape = iota
	ShapeRect
	ShapePolygon
)

// String implements fmt.Stringer.
func (s Shape) String() string {
	switch s {
	case ShapeCircle:
		return "circle"
	case ShapeRect:
		return "rect"
	case ShapePolygon:
		return "polygon"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Boundary is a geofence region. Only the fields belonging to Shape are meaningful.
type Boundary struct {
	Shape Shape

	// ShapeCircle
	Center Point
	Radius float64

	// ShapeRect
	LeftTop     Point
	RightBottom Point

	// ShapePolygon, in traversal order
	Points []Point
}

// NewCircle returns a circular boundary around center with a radius in meters.
func NewCircle(center Point, radius float64) (Boundary, error) {
	if !center.Valid() || radius <= 0 {
		return Boundary{}, fmt.Errorf("%w: circle center %v radius %f", ErrInvalidBoundary, center, radius)
	}
	return Boundary{Shape: ShapeCircle, Center: center, Radius: radius}, nil
}

// NewRect returns a rectangular boundary. The left-top corner must lie north of the right-bottom corner.
// A left longitude greater than the right longitude describes a rectangle crossing the antimeridian.
func NewRect(leftTop, rightBottom Point) (Boundary, error) {
	if !leftTop.Valid() || !rightBottom.Valid() || leftTop.Lat <= rightBottom.Lat {
		return Boundary{}, fmt.Errorf("%w: rect %v %v", ErrInvalidBoundary, leftTop, rightBottom)
	}
	return Boundary{Shape: ShapeRect, LeftTop: leftTop, RightBottom: rightBottom}, nil
}

// NewPolygon returns a polygon boundary with at least three vertices. The point slice is copied.
func NewPolygon(points []Point) (Boundary, error) {
	if len(points) < 3 {
		return Boundary{}, fmt.Errorf("%w: polygon needs at least 3 points, got %d", ErrInvalidBoundary,
			len(points))
	}
	for _, p := range points {
		if !p.Valid() {
			return Boundary{}, fmt.Errorf("%w: polygon vertex %v", ErrInvalidBoundary, p)
		}
	}
	return Boundary{Shape: ShapePolygon, Points: slices.Clone(points)}, nil
}

// Clone returns a deep copy of the boundary.
func (b Boundary) Clone() Boundary {
	b.Points = slices.Clone(b.Points)
	return b
}

// Contains reports whether p lies inside the boundary. Points on a circle's edge count as inside.
func (b Boundary) Contains(p Point) bool {
	switch b.Shape {
	case ShapeCircle:
		return Distance(b.Center, p) <= b.Radius
	case ShapeRect:
		if p.Lat > b.LeftTop.Lat || p.Lat < b.RightBottom.Lat {
			return false
		}
		if b.LeftTop.Lon <= b.RightBottom.Lon {
			return p.Lon >= b.LeftTop.Lon && p.Lon <= b.RightBottom.Lon
		}
		return p.Lon >= b.LeftTop.Lon || p.Lon <= b.RightBottom.Lon
	case ShapePolygon:
		return polygonContains(b.Points, p)
	default:
		return false
	}
}

// polygonContains uses the even-odd ray casting rule in the lat/lon plane.
func polygonContains(points []Point, p Point) bool {
	inside := false
	for i, j := 0, len(points)-1; i < len(points); j, i = i, i+1 {
		a, b := points[i], points[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lon < (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lon {
			inside = !inside
		}
	}
	return inside
}

// Equal reports structural equality. Polygons compare equal regardless of the starting vertex and the
// direction of traversal.
func (b Boundary) Equal(other Boundary) bool {
	if b.Shape != other.Shape {
		return false
	}
	switch b.Shape {
	case ShapeCircle:
		return b.Center == other.Center && b.Radius == other.Radius
	case ShapeRect:
		return b.LeftTop == other.LeftTop && b.RightBottom == other.RightBottom
	case ShapePolygon:
		return polygonEqual(b.Points, other.Points)
	default:
		return false
	}
}

func polygonEqual(a, b []Point) bool {
	n := len(a)
	if n != len(b) {
		return false
	}
	if n == 0 {
		return true
	}
	for offset := range n {
		if a[offset] != b[0] {
			continue
		}
		forward, backward := true, true
		for i := range n {
			if a[(offset+i)%n] != b[i] {
				forward = false
			}
			if a[(offset-i+n)%n] != b[i] {
				backward = false
			}
			if !forward && !backward {
				break
			}
		}
		if forward || backward {
			return true
		}
	}
	return false
}

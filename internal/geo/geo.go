// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geo

import (
	"errors"
	"math"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371000.0

var (
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrInvalidBoundary   = errors.New("invalid boundary geometry")
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

// Valid checks if the point is within the EPSG:4326 value range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the great-circle distance in meters between two points. We are using the Haversine
// formula to calculate the distance between two points on a sphere (in our case: Earth).
func Distance(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(math.Min(1, h)))
}

// Offset returns the point reached by moving north and east by the given number of meters. It is a local
// flat-earth approximation, good enough for geofence sized distances.
func Offset(p Point, north, east float64) Point {
	dLat := north / EarthRadius * 180 / math.Pi
	dLon := east / (EarthRadius * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return Point{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
}

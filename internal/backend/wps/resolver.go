// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package wps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/wneessen/locationd/internal/http"
)

const (
	DefaultIchnaeaEndpoint = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout          = time.Second * 5
)

var ErrMissingAPIKey = errors.New("google geolocation requires an API key")

// Result is a resolved network position. Accuracy is in meters.
type Result struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Resolver turns a list of access points into a position.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, aps []AccessPoint) (Result, error)
}

// Ichnaea resolves through an Ichnaea compatible geolocation API such as beacondb.
type Ichnaea struct {
	http     *http.Client
	endpoint string
}

// NewIchnaea returns an Ichnaea resolver. An empty endpoint selects DefaultIchnaeaEndpoint.
func NewIchnaea(client *http.Client, endpoint string) (*Ichnaea, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if endpoint == "" {
		endpoint = DefaultIchnaeaEndpoint
	}
	return &Ichnaea{http: client, endpoint: endpoint}, nil
}

func (i *Ichnaea) Name() string {
	return "ichnaea"
}

// Resolve implements Resolver.
func (i *Ichnaea) Resolve(ctx context.Context, aps []AccessPoint) (Result, error) {
	type request struct {
		ConsiderIP   bool          `json:"considerIp"`
		AccessPoints []AccessPoint `json:"wifiAccessPoints,omitempty"`
	}
	type response struct {
		Location struct {
			Latitude  float64 `json:"lat"`
			Longitude float64 `json:"lng"`
		} `json:"location"`
		Accuracy float64 `json:"accuracy"`
	}

	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(request{ConsiderIP: true, AccessPoints: aps}); err != nil {
		return Result{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(response)
	if _, err := i.http.PostWithTimeout(ctx, i.endpoint, result, body,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout); err != nil {
		return Result{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	return Result{
		Latitude:  result.Location.Latitude,
		Longitude: result.Location.Longitude,
		Accuracy:  result.Accuracy,
	}, nil
}

// Google resolves through the Google Maps geolocation API.
type Google struct {
	client *maps.Client
}

// NewGoogle returns a Google resolver. Additional client options are passed on to the maps client.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google maps client: %w", err)
	}
	return &Google{client: client}, nil
}

func (g *Google) Name() string {
	return "google"
}

// Resolve implements Resolver.
func (g *Google) Resolve(ctx context.Context, aps []AccessPoint) (Result, error) {
	req := &maps.GeolocationRequest{ConsiderIP: true}
	for _, ap := range aps {
		req.WiFiAccessPoints = append(req.WiFiAccessPoints, maps.WiFiAccessPoint{
			MACAddress:     ap.MACAddress,
			SignalStrength: float64(ap.SignalStrength),
			Age:            uint64(max(ap.LastSeen, 0)),
		})
	}

	ctxLookup, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	resp, err := g.client.Geolocate(ctxLookup, req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to geolocate via google: %w", err)
	}
	return Result{Latitude: resp.Location.Lat, Longitude: resp.Location.Lng, Accuracy: resp.Accuracy}, nil
}

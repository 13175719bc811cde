// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package wps

import (
	"fmt"
	"strings"

	"github.com/mdlayher/wifi"
)

// AccessPoint is one observed wireless network.
type AccessPoint struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// Scanner lists the access points currently in range.
type Scanner interface {
	AccessPoints() ([]AccessPoint, error)
}

// WifiScanner scans every station interface through nl80211.
type WifiScanner struct {
	client *wifi.Client
}

// NewWifiScanner opens a nl80211 connection.
func NewWifiScanner() (*WifiScanner, error) {
	client, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	return &WifiScanner{client: client}, nil
}

// Close releases the nl80211 connection.
func (s *WifiScanner) Close() error {
	return s.client.Close()
}

// AccessPoints implements Scanner. Hidden networks and networks opting out with a "_nomap" suffix are
// skipped.
func (s *WifiScanner) AccessPoints() ([]AccessPoint, error) {
	ifaces, err := s.client.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []AccessPoint
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := s.client.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if !mappable(ap.SSID) {
				continue
			}
			list = append(list, AccessPoint{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}

func mappable(ssid string) bool {
	return ssid != "" && ssid[0] != '\x00' && !strings.HasSuffix(ssid, "_nomap")
}

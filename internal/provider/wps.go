// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"github.com/wneessen/locationd/internal/settings"
)

// WPS is a network positioning provider resolving nearby access points into a position.
type WPS struct {
	backed
}

// NewWPS returns a WPS provider driven by backend.
func NewWPS(backend Backend, opts Options) (*WPS, error) {
	w := &WPS{}
	if err := w.init(MethodWPS, settings.WPSEnabled, backend, opts); err != nil {
		return nil, err
	}
	w.stateKey = settings.WPSState
	return w, nil
}

// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"errors"
)

// Error kinds returned by providers. Callers test for them with errors.Is.
var (
	ErrParameterInvalid = errors.New("invalid parameter")
	ErrNotAvailable     = errors.New("location service is not available")
	ErrNotSupported     = errors.New("operation is not supported")
	ErrSettingOff       = errors.New("location setting is off")
	ErrNotAllowed       = errors.New("location service is not allowed")
	ErrSecurityDenied   = errors.New("location service is denied by the system")
	ErrNetworkFailed    = errors.New("network is not available")
	ErrNotFound         = errors.New("output is not found")
	ErrConfiguration    = errors.New("configuration is not correct")
	ErrUnknown          = errors.New("unknown error")
)

// priority orders the kinds reported when every attempted child provider failed.
var priority = []error{ErrSecurityDenied, ErrSettingOff, ErrNotAllowed}

// MostSpecific returns the highest priority error kind among errs. SecurityDenied beats SettingOff, which
// beats NotAllowed; everything else collapses into NotAvailable. It returns nil if all errs are nil.
func MostSpecific(errs ...error) error {
	failed := false
	for _, err := range errs {
		if err != nil {
			failed = true
			break
		}
	}
	if !failed {
		return nil
	}
	for _, kind := range priority {
		for _, err := range errs {
			if errors.Is(err, kind) {
				return kind
			}
		}
	}
	return ErrNotAvailable
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// LocationSource labels which candidate won the location resolution.
type LocationSource string

const (
	LocationSourceNone   LocationSource = ""
	LocationSourceManual LocationSource = "manual"
	LocationSourceImage  LocationSource = "image"
	LocationSourceAI     LocationSource = "ai"
	LocationSourceDevice LocationSource = "device"
)

// resolveLocation merges up to four location candidates into one canonical
// position. Priority: manual pin, then image EXIF, then the analysis
// backend's estimate, then the device fix. All-nil input yields nil and
// LocationSourceNone.
func resolveLocation(manual, imageGPS, aiLocation, deviceGPS *Location) (*Location, LocationSource) {
	switch {
	case manual != nil:
		return manual, LocationSourceManual
	case imageGPS != nil:
		return imageGPS, LocationSourceImage
	case aiLocation != nil:
		return aiLocation, LocationSourceAI
	case deviceGPS != nil:
		return deviceGPS, LocationSourceDevice
	}
	return nil, LocationSourceNone
}

var (
	errLocationDenied      = errors.New("location permission denied")
	errLocationUnavailable = errors.New("location unavailable")
	errLocationTimeout     = errors.New("location request timed out")
)

// DeviceLocator abstracts the device geolocation capability.
type DeviceLocator interface {
	Locate(ctx context.Context) (*Location, error)
}

// HTTPDeviceLocator queries a local positioning agent over HTTP.
type HTTPDeviceLocator struct {
	BaseURL string
	Client  *http.Client
}

func (l *HTTPDeviceLocator) Locate(ctx context.Context) (*Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL+"/position", nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errLocationTimeout
		}
		return nil, errLocationUnavailable
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, errLocationDenied
	default:
		return nil, fmt.Errorf("%w: agent status %d", errLocationUnavailable, resp.StatusCode)
	}

	var data struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, errLocationUnavailable
	}
	if data.Lat == nil || data.Lng == nil {
		return nil, errLocationUnavailable
	}
	return &Location{Lat: *data.Lat, Lng: *data.Lng}, nil
}

// StaticDeviceLocator serves a fixed position, or reports unavailable when
// none is configured. Useful for tests and for deployments without a
// positioning agent.
type StaticDeviceLocator struct {
	Position *Location
}

func (l *StaticDeviceLocator) Locate(ctx context.Context) (*Location, error) {
	if l.Position == nil {
		return nil, errLocationUnavailable
	}
	return l.Position, nil
}

// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/smazurov/lednode/internal/led"
	"github.com/smazurov/lednode/internal/timesync"
	"github.com/smazurov/lednode/internal/version"
)

// Health check models
type HealthData struct {
	Status       string    `json:"status" example:"ok" doc:"Service status"`
	Connected    bool      `json:"connected" doc:"Whether the network transport is associated"`
	Transport    string    `json:"transport,omitempty" example:"coprocessor" doc:"Network transport backend"`
	Iterations   uint64    `json:"loop_iterations" doc:"Control loop iterations since start"`
	Recoveries   uint64    `json:"loop_recoveries" doc:"Times the loop re-established connectivity"`
	LastRecovery time.Time `json:"last_recovery,omitzero" doc:"When the last recovery happened"`
	LastFault    string    `json:"last_fault,omitempty" doc:"Fault that caused the last recovery"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Command models
type ColorBody struct {
	R int `json:"r" minimum:"0" maximum:"255" example:"255" doc:"Red channel"`
	G int `json:"g" minimum:"0" maximum:"255" example:"40" doc:"Green channel"`
	B int `json:"b" minimum:"0" maximum:"255" example:"0" doc:"Blue channel"`
}

type ColorRequest struct {
	Body ColorBody
}

type StateResponse struct {
	Body led.Snapshot
}

// Cloud data models
type LocationQuery struct {
	Location string `query:"location" example:"America/Chicago" doc:"Location override; defaults to the configured one"`
}

type TimeData struct {
	Local  string              `json:"local" example:"2024-03-05 14:22:07" doc:"Local time at the location"`
	Sample timesync.TimeSample `json:"sample"`
}

type TimeResponse struct {
	Body TimeData
}

type TemperaturesRequest struct {
	Feeds []string `query:"feed" doc:"Feed names; defaults to the configured feeds"`
}

type TemperaturesData struct {
	Feeds   map[string]*float64 `json:"feeds" doc:"Latest value per feed, null when it could not be read"`
	Missing []string            `json:"missing,omitempty" doc:"Feeds that could not be read"`
}

type TemperaturesResponse struct {
	Body TemperaturesData
}

type WeatherData struct {
	Temperature string `json:"temperature" example:"26 F" doc:"Outdoor temperature in whole degrees Fahrenheit"`
}

type WeatherResponse struct {
	Body WeatherData
}

package models

import "time"

// Requests for traffic control HTTP endpoints.

type StatusReportRequest struct {
	TrainID         string   `json:"train_id" validate:"required,max=64,identifier"`
	CurrentLocation string   `json:"current_location" validate:"required_without=SegmentID"`
	SegmentID       string   `json:"segment_id"`
	OffsetM         float64  `json:"offset_m" validate:"gte=0"`
	SpeedKmh        float64  `json:"speed_kmh" validate:"gte=0,lte=500"`
	Status          string   `json:"status" default:"On Time" validate:"required"`
	DelayMinutes    int      `json:"delay_minutes" default:"0" validate:"gte=0"`
	Priority        string   `json:"priority" validate:"omitempty,max=32"`
	Route           []string `json:"route" validate:"omitempty,dive,required,identifier"`
	Timestamp       string   `json:"timestamp"`
}

type TrainRequest struct {
	TrainID string `param:"train_id" validate:"required,max=64,identifier"`
}

type HistoryRequest struct {
	TrainID string `param:"train_id" validate:"required,max=64,identifier"`
	Limit   int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

// StatusReport is an ingestion command, whatever transport it arrived on.
type StatusReport struct {
	TrainID      string    `json:"train_id"`
	Location     Location  `json:"location"`
	SpeedKmh     float64   `json:"speed_kmh"`
	Status       string    `json:"status"`
	DelayMinutes int       `json:"delay_minutes"`
	Priority     string    `json:"priority,omitempty"`
	Route        []string  `json:"route,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Report converts the request into an ingestion command stamped with ts.
func (r *StatusReportRequest) Report(ts time.Time) StatusReport {
	loc := Location{Ref: r.CurrentLocation}
	if r.SegmentID != "" {
		loc = Location{Ref: r.CurrentLocation, SegmentID: r.SegmentID, OffsetM: r.OffsetM}
	}
	return StatusReport{
		TrainID:      r.TrainID,
		Location:     loc,
		SpeedKmh:     r.SpeedKmh,
		Status:       r.Status,
		DelayMinutes: r.DelayMinutes,
		Priority:     r.Priority,
		Route:        r.Route,
		Timestamp:    ts,
	}
}

// StatusAck mirrors the acknowledgement body returned on accepted reports.
type StatusAck struct {
	Message string `json:"message"`
	TrainID string `json:"train_id"`
}

package server

import (
	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/engine"
)

// SessionResponse is returned when a session is opened.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// InvokeRequest defines the body of the invoke endpoints.
type InvokeRequest struct {
	Root string       `json:"root"`
	IncV []engine.Inc `json:"inc_v"`
}

type InvokeResponse struct {
	Result string `json:"result"`
}

// PathResponse lists the points a path evaluates to, in first-seen order.
type PathResponse struct {
	Points []string `json:"points"`
}

// ListRequest defines the body for table aggregation.
type ListRequest struct {
	Root       string   `json:"root"`
	Dimensions []string `json:"dimensions"`
	Attrs      []string `json:"attrs,omitempty"`
}

type ListResponse struct {
	Rows []edge.Record `json:"rows"`
}

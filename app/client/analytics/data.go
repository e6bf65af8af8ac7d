package analytics

import "encoding/json"

type Request struct {
	SessionID       string `json:"sessionId"`
	CentreID        string `json:"centreId"`
	CentreName      string `json:"centreName"`
	DurationMonths  int    `json:"durationMonths"`
	Message         string `json:"message"`
	ApplicationType string `json:"applicationType"`
	IsNGO           *bool  `json:"isNgo,omitempty"`
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type outputWrapper struct {
	Output string `json:"output"`
}

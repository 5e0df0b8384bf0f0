package api

import "github.com/satriahrh/elena/assistant/usecase"

// StatusResponse represents the response payload for the status endpoint
type StatusResponse struct {
	Pipeline       usecase.PipelineStatus `json:"pipeline"`
	MonitorClients int                    `json:"monitor_clients"`
}

// SynthesizeRequest represents the request payload for archiving a spoken reply
type SynthesizeRequest struct {
	Text string `json:"text" validate:"required"`
	// File is a bare file name inside the archive directory. Generated when empty.
	File string `json:"file,omitempty"`
}

// SynthesizeResponse represents the response payload for synthesis
type SynthesizeResponse struct {
	Path string `json:"path"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// json_output.go - JSON output support for SIEM and pipeline integration.
//
// Provides a standardized JSON output format for all CLI commands so
// downstream tooling can consume results without scraping human output.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/rigtrail/internal/deliver"
	"github.com/jeranaias/rigtrail/internal/redact"
)

// JSONResponse is the standardized response format for all CLI commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the ISO8601 timestamp when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed (for audit trail)
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Error:     nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Data:      nil,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout.
// Human-readable messages should go to stderr when JSON mode is enabled.
func (r *JSONResponse) Print() error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// StderrPrintf prints to stderr (for human-readable output in JSON mode).
func StderrPrintf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// TraceData represents the data returned by the trace-id command.
type TraceData struct {
	TraceID   string `json:"trace_id"`
	UUID      string `json:"uuid"`
	CreatedAt string `json:"created_at"`
}

// MaskData represents the data returned by the mask command.
type MaskData struct {
	Detection redact.Result    `json:"detection"`
	Analysis  *redact.Analysis `json:"analysis,omitempty"`
}

// RecordData represents the data returned by the record command.
type RecordData struct {
	TraceID     string `json:"trace_id"`
	Path        string `json:"path"`
	RecordHash  string `json:"record_hash"`
	PrevHash    string `json:"prev_hash,omitempty"`
	TotalMasked int    `json:"total_masked"`
	Detector    string `json:"detector_used"`
}

// SendData represents the data returned by the send command.
type SendData struct {
	TraceID string `json:"trace_id"`
	Group   string `json:"group"`
	Stream  string `json:"stream"`
}

// UploadData represents the data returned by the upload command.
type UploadData struct {
	Summary deliver.Summary `json:"summary"`
	DryRun  bool            `json:"dry_run,omitempty"`
}

// VerifyData represents the data returned by the verify command.
type VerifyData struct {
	Checked int    `json:"checked"`
	Valid   bool   `json:"valid"`
	Record  string `json:"record,omitempty"`
}

// KeysData represents the data returned by the keys command.
type KeysData struct {
	Fingerprint    string `json:"fingerprint"`
	PrivateKeyPath string `json:"private_key_path"`
	PublicKeyPath  string `json:"public_key_path"`
	ContentKeyPath string `json:"content_key_path"`
	Generated      bool   `json:"generated,omitempty"`
}

// StatusData represents the data returned by the status command.
type StatusData struct {
	Store StatusStoreInfo `json:"store"`
	Chain StatusChainInfo `json:"chain"`
	Keys  StatusKeysInfo  `json:"keys"`
	Sink  StatusSinkInfo  `json:"sink"`
}

// StatusStoreInfo contains record store counts for the status command.
type StatusStoreInfo struct {
	Root      string `json:"root"`
	Pending   int    `json:"pending"`
	Processed int    `json:"processed"`
}

// StatusChainInfo contains the chain head for the status command.
type StatusChainInfo struct {
	LastHash    string `json:"last_hash,omitempty"`
	LastTraceID string `json:"last_trace_id,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// StatusKeysInfo contains key material state for the status command.
type StatusKeysInfo struct {
	Dir         string `json:"dir"`
	Present     bool   `json:"present"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// StatusSinkInfo contains sink coordinates for the status command.
type StatusSinkInfo struct {
	LogGroup  string `json:"log_group"`
	LogStream string `json:"log_stream"`
	Region    string `json:"region"`
}

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

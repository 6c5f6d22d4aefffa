package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type commandOutput struct {
	Command    string `json:"command"`
	RequestID  string `json:"request_id"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

func writeJSON(w io.Writer, command, requestID string, start time.Time, result any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(commandOutput{
		Command:    command,
		RequestID:  requestID,
		DurationMS: time.Since(start).Milliseconds(),
		Result:     result,
	}); err != nil {
		return withCode(exitFailure, fmt.Errorf("json encode: %w", err))
	}
	return nil
}

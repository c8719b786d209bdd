package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
)

// JSONMode controls whether output is JSON or human-readable
var JSONMode = false

// Stdout receives JSON output
var Stdout io.Writer = os.Stdout

// DiscoveryInfo represents a resolution pass in JSON output
type DiscoveryInfo struct {
	BaseURL    string `json:"base_url"`
	Port       int    `json:"port"`
	Connected  bool   `json:"connected"`
	Source     string `json:"source"`
	HintPort   int    `json:"hint_port,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
}

// StatusInfo represents the connection state in JSON output
type StatusInfo struct {
	BaseURL       string `json:"base_url"`
	Connected     bool   `json:"connected"`
	ModelLoaded   bool   `json:"model_loaded"`
	Source        string `json:"source,omitempty"`
	LastCheckedAt string `json:"last_checked_at,omitempty"`
	Process       string `json:"process,omitempty"`
	PID           int32  `json:"pid,omitempty"`
	Breaker       string `json:"circuit_breaker,omitempty"`
}

// CommandResult represents a generic command result
type CommandResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PrintJSON outputs data as JSON
func PrintJSON(data interface{}) error {
	encoder := json.NewEncoder(Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

// Success outputs a success result
func Success(message string, data interface{}) {
	if JSONMode {
		PrintJSON(CommandResult{
			Success: true,
			Message: message,
			Data:    data,
		})
	}
	// Normal output handled by caller
}

// Error outputs an error result
func Error(message string, err error) {
	if JSONMode {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		PrintJSON(CommandResult{
			Success: false,
			Message: message,
			Error:   errMsg,
		})
	}
	// Normal error output handled by caller
}

// PrintList outputs a slice under key together with its length. A nil slice
// is written as an empty array.
func PrintList(key string, items interface{}) {
	if !JSONMode {
		return
	}
	count := 0
	if v := reflect.ValueOf(items); v.Kind() == reflect.Slice {
		count = v.Len()
		if v.IsNil() {
			items = []struct{}{}
		}
	}
	PrintJSON(map[string]interface{}{
		key:     items,
		"count": count,
	})
}

// PrintStatus outputs the connection state
func PrintStatus(info StatusInfo) {
	if JSONMode {
		PrintJSON(info)
	}
}

// PrintDiscovery outputs a resolution pass
func PrintDiscovery(info DiscoveryInfo) {
	if JSONMode {
		PrintJSON(info)
	}
}

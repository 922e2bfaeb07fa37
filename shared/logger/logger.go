// Copyright 2025 QueryGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level represents the severity of a log entry
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger emits structured JSON log lines to stdout. One instance per
// component; request-scoped identifiers are passed per call.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// Entry is the wire format of a single log line
type Entry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      Level                  `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	RequestID  string                 `json:"request_id,omitempty"`
	Connection string                 `json:"connection,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the named component
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log writes a structured entry to stdout
func (l *Logger) Log(level Level, requestID, connection, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		RequestID:  requestID,
		Connection: connection,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(requestID, connection, message string, fields map[string]interface{}) {
	l.Log(INFO, requestID, connection, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(requestID, connection, message string, fields map[string]interface{}) {
	l.Log(WARN, requestID, connection, message, fields)
}

// Error logs an error message
func (l *Logger) Error(requestID, connection, message string, fields map[string]interface{}) {
	l.Log(ERROR, requestID, connection, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(requestID, connection, message string, fields map[string]interface{}) {
	l.Log(DEBUG, requestID, connection, message, fields)
}

// RejectedWithReason logs a pipeline rejection with its stage and reason code
func (l *Logger) RejectedWithReason(requestID, connection, stage, reason string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["stage"] = stage
	fields["reason"] = reason
	l.Warn(requestID, connection, "request rejected", fields)
}

// InfoWithDuration logs an info message with a duration_ms field
func (l *Logger) InfoWithDuration(requestID, connection, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(requestID, connection, message, fields)
}

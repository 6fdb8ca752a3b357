package db

import (
	"encoding/json"
	"time"
)

// DispatchRecord represents a row in the dispatch_log table.
type DispatchRecord struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Ok        bool            `json:"ok"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Raw       string          `json:"raw,omitempty"`
	Created   time.Time       `json:"created"`
}

// CodeCount is the number of dispatch attempts that ended with Code ("" for successes).
type CodeCount struct {
	Code  string `json:"code"`
	Count int64  `json:"count"`
}

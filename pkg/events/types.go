// Package events defines dispatch events and the publishers that deliver them.
package events

import "github.com/morezero/directive-dispatch/pkg/directive"

// DispatchEvent records one attempt to dispatch a directive. Code and Message
// are empty when Ok is true.
type DispatchEvent struct {
	ID        string                `json:"id"`
	Operation string                `json:"operation"`
	Arguments directive.ArgumentMap `json:"arguments,omitempty"`
	Ok        bool                  `json:"ok"`
	Code      string                `json:"code,omitempty"`
	Message   string                `json:"message,omitempty"`
	Raw       string                `json:"raw,omitempty"`
	Timestamp string                `json:"timestamp"`
}

package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/directive-dispatch/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// Headers set on every published dispatch event so subscribers can filter
// without decoding the body.
const (
	HeaderDispatchID      = "Dispatch-Id"
	HeaderDispatchOutcome = "Dispatch-Outcome"
)

// OutcomeOK is the Dispatch-Outcome value for a successful dispatch; failures carry their error code.
const OutcomeOK = "ok"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Subject overrides the global dispatch event subject (e.g. from DISPATCH_EVENT_SUBJECT).
	Subject string
}

// CommsPublisher fans each dispatch event out to "<subject>.<operation>" and "<subject>".
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
}

func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectDispatchEvent
	if opts != nil && opts.Subject != "" {
		subject = opts.Subject
	}
	return &CommsPublisher{nc: nc, subject: subject}
}

// PublishDispatched publishes event on the per-operation subject first, then the global one.
func (p *CommsPublisher) PublishDispatched(_ context.Context, event *DispatchEvent) error {
	msgs, err := p.messages(event)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := p.nc.PublishMsg(msg); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, msg.Subject, err))
			return err
		}
	}
	slog.Debug(fmt.Sprintf("%s - Published dispatch event %s for %s (%s)", commsPublisherLogPrefix, event.ID, event.Operation, Outcome(event)))
	return nil
}

func (p *CommsPublisher) messages(event *DispatchEvent) ([]*comms.Msg, error) {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}
	subjects := []string{commsutil.BuildDispatchSubject(p.subject, event.Operation), p.subject}
	msgs := make([]*comms.Msg, 0, len(subjects))
	for _, subject := range subjects {
		msg := comms.NewMsg(subject)
		msg.Data = data
		msg.Header.Set(HeaderDispatchID, event.ID)
		msg.Header.Set(HeaderDispatchOutcome, Outcome(event))
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Outcome is OutcomeOK for a successful event and the error code otherwise.
func Outcome(event *DispatchEvent) string {
	if event.Ok {
		return OutcomeOK
	}
	return event.Code
}

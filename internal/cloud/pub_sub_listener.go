// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/apierr"
	"github.com/jaycherian/gcp-go-video-analyzer/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener pulls messages from one subscription and runs a command for
// each of them. A message is nacked for redelivery only when the command
// recorded a transient error (apierr.IsTransient). Success and deterministic
// failures, such as a model reply that cannot be parsed, are acked so the
// same video is not analyzed again and again.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener for subscriptionID. The command may be
// nil and attached later with SetCommand. A positive maxExtension bounds how
// long a single message may be processed before Pub/Sub redelivers it.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	maxExtension time.Duration,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	if maxExtension > 0 {
		sub.ReceiveSettings.MaxExtension = maxExtension
	}
	return &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}, nil
}

// SetCommand attaches the command if none was set yet.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// handle runs the command on one payload and reports whether the message
// should be redelivered.
func (m *PubSubListener) handle(ctx context.Context, data string) (retry bool) {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, data)

	m.command.Execute(chainCtx)

	for name, e := range chainCtx.GetErrors() {
		slog.ErrorContext(ctx, "error executing chain", "command", name, "error", e)
		if apierr.IsTransient(e) {
			retry = true
		}
	}
	return retry
}

// Listen starts receiving in a background goroutine until ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	if m.command == nil {
		slog.Warn("listener has no command, not starting", "subscription", m.subscription.ID())
		return
	}
	slog.Info("listening", "subscription", m.subscription.ID())

	go func() {
		tracer := otel.Tracer("message-listener")

		err := m.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			spanCtx, span := tracer.Start(msgCtx, "receive-message")
			defer span.End()
			span.SetAttributes(attribute.String("msg.id", msg.ID))

			if m.handle(spanCtx, string(msg.Data)) {
				span.SetStatus(codes.Error, "failed, redelivering")
				msg.Nack()
				return
			}
			span.SetStatus(codes.Ok, "handled")
			msg.Ack()
		})

		if err != nil {
			slog.Error("error receiving messages", "subscription", m.subscription.ID(), "error", err)
		}
	}()
}

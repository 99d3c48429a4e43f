package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"directmsg/infrastructure/ws"
	"directmsg/internal/entity"
	"directmsg/internal/metrics"
)

// DeliveryBroker fans events out to live connections. Push failures are
// logged and counted, never returned: the store is the source of truth and
// clients recover missed pushes by fetching.
type DeliveryBroker interface {
	// Deliver pushes message-received to the recipient and to the sender's
	// other connections, skipping originConnId.
	Deliver(ctx context.Context, message entity.Message, originConnId string)
	Notify(ctx context.Context, userId string, event entity.Event)
}

type deliveryBroker struct {
	hub     ws.IHub
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewDeliveryBroker(hub ws.IHub, m *metrics.Metrics, logger *zap.Logger) DeliveryBroker {
	return &deliveryBroker{
		hub:     hub,
		metrics: m,
		logger:  logger,
	}
}

func (b *deliveryBroker) Deliver(ctx context.Context, message entity.Message, originConnId string) {
	// The author reconciles its own copy from the send response.
	message.TempId = ""
	payload, err := encodeEvent(entity.EventMessageReceived, message)
	if err != nil {
		b.logger.Error("encode message event", zap.String("messageId", message.Id), zap.Error(err))
		return
	}

	conns := b.hub.ConnectionsFor(ctx, message.RecipientId)
	for _, conn := range b.hub.ConnectionsFor(ctx, message.SenderId) {
		if conn.Id() != originConnId {
			conns = append(conns, conn)
		}
	}
	b.push(entity.EventMessageReceived, conns, payload)
}

func (b *deliveryBroker) Notify(ctx context.Context, userId string, event entity.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("encode event", zap.String("event", event.Event), zap.Error(err))
		return
	}
	b.push(event.Event, b.hub.ConnectionsFor(ctx, userId), payload)
}

// push enqueues payload on every connection in parallel and waits for all
// enqueues, so events leave in the order push is called.
func (b *deliveryBroker) push(event string, conns []ws.Connection, payload []byte) {
	if len(conns) == 0 {
		return
	}

	var g errgroup.Group
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if err := conn.Send(payload); err != nil {
				b.metrics.Pushes.WithLabelValues(event, metrics.ResultFailed).Inc()
				b.logger.Warn("push failed",
					zap.String("event", event),
					zap.String("connId", conn.Id()),
					zap.Error(fmt.Errorf("%w: %v", ErrTransientDelivery, err)),
				)
				return nil
			}
			b.metrics.Pushes.WithLabelValues(event, metrics.ResultDelivered).Inc()
			return nil
		})
	}
	_ = g.Wait()
}

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(entity.Event{Event: event, Data: data})
}

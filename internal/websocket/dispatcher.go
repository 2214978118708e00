package websocket

import (
	"context"
	"errors"
	"time"

	"chat-relay/internal/models"
	"chat-relay/pkg/logger"
)

// MessageStore persists a message in the backend of record
type MessageStore interface {
	CreateMessage(ctx context.Context, token string, req models.CreateMessageRequest) (*models.SavedMessage, error)
}

// Dispatcher saves a client's message and fans the result out.
// Delivery is best effort and at most once: closed sockets are skipped, nothing is retried or queued.
type Dispatcher struct {
	registry *Registry
	store    MessageStore
	timeout  time.Duration
	metrics  *DispatchMetrics
	logger   *logger.Logger
}

func NewDispatcher(registry *Registry, store MessageStore, timeout time.Duration, metrics *DispatchMetrics, log *logger.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NewDispatchMetrics(0)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		registry: registry,
		store:    store,
		timeout:  timeout,
		metrics:  metrics,
		logger:   log.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) Metrics() *DispatchMetrics {
	return d.metrics
}

// DispatchSend persists data and, on success, sends the saved message to the
// conversation room and a list-updated notice to participating lobby members.
// Failures are reported to sender only and returned.
func (d *Dispatcher) DispatchSend(ctx context.Context, sender Connection, data SendMessageData) error {
	start := time.Now()
	metric := DispatchMetric{ConversationID: data.ConversationID.String(), Timestamp: start}
	defer func() {
		metric.Duration = time.Since(start)
		d.metrics.Record(metric)
	}()

	if err := data.Validate(); err != nil {
		metric.Failed = true
		d.reply(sender, errorReply(err))
		return err
	}

	d.logger.Info("Dispatching message",
		"clientID", sender.GetID(),
		"conversationID", data.ConversationID.GoString(),
		"senderID", data.SenderID.GoString())

	saved, err := d.persist(ctx, data)
	if err != nil {
		metric.Failed = true
		d.logger.Error("Failed to save message", "clientID", sender.GetID(),
			"conversationID", data.ConversationID.GoString(), "error", err)
		d.reply(sender, errorReply(err))
		return err
	}

	if len(saved.ParticipantUserIDs) == 0 {
		d.logger.Warn("No participant user ids in API response", "conversationID", data.ConversationID.GoString())
	}

	// Membership is read now, not when the send began
	delivered, skipped := d.deliver(d.registry.MembersOf(data.ConversationID), NewChatMessage(saved.Data))
	metric.RoomDelivered, metric.Skipped = delivered, skipped
	d.logger.Info("Message delivered to conversation",
		"conversationID", data.ConversationID.GoString(), "delivered", delivered, "skipped", skipped)

	notified, skipped := d.deliver(
		d.registry.LobbyMembersMatching(saved.ParticipantUserIDs),
		NewConversationListUpdatedMessage(data.ConversationID),
	)
	metric.LobbyDelivered = notified
	metric.Skipped += skipped
	d.logger.Debug("Lobby participants notified", "conversationID", data.ConversationID.GoString(), "notified", notified)

	return nil
}

func (d *Dispatcher) persist(ctx context.Context, data SendMessageData) (*models.SavedMessage, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	saved, err := d.store.CreateMessage(ctx, data.Token, data.CreateRequest())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &persistenceError{sentinel: ErrPersistenceTimeout, cause: err}
		}
		return nil, &persistenceError{sentinel: ErrPersistenceFailed, cause: err}
	}
	return saved, nil
}

func (d *Dispatcher) reply(sender Connection, message *Message) {
	if sender.IsClosed() {
		return
	}
	if err := sender.SendMessage(message); err != nil {
		d.logger.Debug("Failed to reply to sender", "clientID", sender.GetID(), "error", err)
	}
}

// deliver sends message to every open connection and counts the ones skipped
func (d *Dispatcher) deliver(conns []Connection, message *Message) (delivered, skipped int) {
	for _, conn := range conns {
		if conn.IsClosed() {
			skipped++
			continue
		}
		if err := conn.SendMessage(message); err != nil {
			d.logger.Debug("Skipping connection during fan-out", "clientID", conn.GetID(), "error", err)
			skipped++
			continue
		}
		delivered++
	}
	return delivered, skipped
}

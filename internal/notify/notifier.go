package notify

import (
	"log"

	pubnub "github.com/pubnub/go/v7"
)

// Event names emitted by the purchase, reconciliation and refund flows.
// Formatting and delivery to end users is the notification service's
// concern; this side only publishes.
const (
	EventTicketDelivered = "ticket.delivered"
	EventPaymentRejected = "payment.rejected"
	EventRefundProcessed = "refund.processed"
)

type Message struct {
	Event         string `json:"event"`
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
	Detail        string `json:"detail,omitempty"`
}

type Notifier interface {
	Publish(msg Message)
}

// PubNubNotifier pushes engine events to the notification service channel.
type PubNubNotifier struct {
	client  *pubnub.PubNub
	channel string
}

func NewPubNubNotifier(publishKey, subscribeKey, uuid, channel string) *PubNubNotifier {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(uuid))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey

	return &PubNubNotifier{
		client:  pubnub.NewPubNub(cfg),
		channel: channel,
	}
}

func (n *PubNubNotifier) Publish(msg Message) {
	_, status, err := n.client.Publish().
		Channel(n.channel).
		Message(msg).
		Execute()
	if err != nil {
		log.Printf("notify publish %s: %v", msg.Event, err)
		return
	}
	if status.Error != nil {
		log.Printf("notify publish %s: %v", msg.Event, status.Error)
	}
}

// Nop is used when PubNub is not configured and in tests.
type Nop struct{}

func (Nop) Publish(Message) {}

package domain

import (
	"fmt"

	"github.com/google/uuid"
)

const EventTypePaymentComplete = "payment_complete"

// EventMessage is the body published to the notifications exchange.
type EventMessage struct {
	Type      string `json:"type"`
	PaymentID string `json:"payment_id"`
	Message   string `json:"message"`
}

func NewPaymentCompleteEvent(paymentID uuid.UUID) EventMessage {
	return EventMessage{
		Type:      EventTypePaymentComplete,
		PaymentID: paymentID.String(),
		Message:   fmt.Sprintf("Payment %s completed successfully", paymentID),
	}
}

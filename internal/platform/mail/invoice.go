package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cotidiano/api/internal/services"
)

// Sender is the narrow surface InvoiceMailer needs from SMTPMailer.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InvoiceMailer composes the order invoice email and implements
// services.InvoiceMailer over an SMTP transport.
type InvoiceMailer struct {
	sender Sender
}

// NewInvoiceMailer wraps a mailer with the invoice message layout.
func NewInvoiceMailer(sender Sender) (*InvoiceMailer, error) {
	if sender == nil {
		return nil, errors.New("mail: sender is required")
	}
	return &InvoiceMailer{sender: sender}, nil
}

// SendInvoice mails the rendered invoice to the order's customer.
func (m *InvoiceMailer) SendInvoice(ctx context.Context, order services.Order, pdf []byte) error {
	if m == nil || m.sender == nil {
		return errors.New("mail: invoice mailer not initialised")
	}
	to := strings.TrimSpace(order.Email)
	if to == "" {
		return errors.New("mail: order has no customer email")
	}

	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Presupuesto de tu pedido #%s", order.Number),
		Body:    invoiceBody(order),
		Attachments: []Attachment{{
			Filename:    fmt.Sprintf("pedido-%s.pdf", order.Number),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	})
}

func invoiceBody(order services.Order) string {
	var b strings.Builder
	name := strings.TrimSpace(order.CustomerName)
	if name == "" {
		name = "cliente"
	}
	fmt.Fprintf(&b, "Hola %s,\n\n", name)
	fmt.Fprintf(&b, "Adjuntamos el presupuesto de tu pedido #%s.\n\n", order.Number)
	fmt.Fprintf(&b, "Total: $%s\n", order.Total.StringFixed(2))
	fmt.Fprintf(&b, "Estado: %s\n\n", order.Status.Label())
	b.WriteString("Gracias por tu compra.\n")
	return b.String()
}

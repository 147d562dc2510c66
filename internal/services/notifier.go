package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/liverlink/liverlink-backend/internal/clients/twilio"
	"github.com/liverlink/liverlink-backend/internal/logger"
)

// Delivery is the recorded outcome of one notification attempt.
type Delivery struct {
	Delivered bool   `json:"delivered"`
	Detail    string `json:"detail"`
}

// AlertNotifier sends an out-of-band message to a candidate's care team.
// It never returns an error: delivery failure is an outcome to record, not
// a reason to fail the contact call.
type AlertNotifier interface {
	Notify(ctx context.Context, to string, message string) Delivery
}

type smsNotifier struct {
	log *logger.Logger
	tw  twilio.Client
}

func NewSMSNotifier(baseLog *logger.Logger, tw twilio.Client) AlertNotifier {
	return &smsNotifier{log: baseLog.With("service", "SMSNotifier"), tw: tw}
}

func (n *smsNotifier) Notify(ctx context.Context, to string, message string) Delivery {
	to = strings.TrimSpace(to)
	if to == "" {
		return Delivery{Delivered: false, Detail: "no contact number on record"}
	}
	msg, err := n.tw.SendSMS(ctx, to, message)
	if err != nil {
		n.log.Warn("SMS delivery failed", "to", to, "error", err)
		return Delivery{Delivered: false, Detail: fmt.Sprintf("sms delivery failed: %v", err)}
	}
	n.log.Info("SMS sent", "to", to, "sid", msg.SID, "status", msg.Status)
	return Delivery{Delivered: true, Detail: fmt.Sprintf("sms %s status=%s", msg.SID, msg.Status)}
}

// mockNotifier stands in when Twilio is not configured; it logs the message
// and reports a successful mock delivery, mirroring how a dev environment
// behaves.
type mockNotifier struct {
	log *logger.Logger
}

func NewMockNotifier(baseLog *logger.Logger) AlertNotifier {
	return &mockNotifier{log: baseLog.With("service", "MockNotifier")}
}

func (n *mockNotifier) Notify(ctx context.Context, to string, message string) Delivery {
	n.log.Info("Mock SMS", "to", to, "message", message)
	if strings.TrimSpace(to) == "" {
		return Delivery{Delivered: false, Detail: "no contact number on record"}
	}
	return Delivery{Delivered: true, Detail: "sms mocked (twilio not configured)"}
}

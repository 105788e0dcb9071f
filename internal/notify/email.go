package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/codr1/courtbook/internal/localtime"
	"github.com/codr1/courtbook/internal/models"
)

type Message struct {
	Subject string
	Body    string
}

// EmailSink mails the booking contact about the events they care about.
type EmailSink struct {
	sender EmailSender
	locale string
}

func NewEmailSink(sender EmailSender, locale string) *EmailSink {
	return &EmailSink{sender: sender, locale: locale}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, event models.BookingEventPayload) error {
	recipient := strings.TrimSpace(event.Recipient)
	if recipient == "" {
		return nil
	}
	msg, ok := BuildMessage(event, s.locale)
	if !ok {
		return nil
	}
	return s.sender.Send(ctx, recipient, msg.Subject, msg.Body)
}

// BuildMessage renders the plain-text email for event. ok is false for events
// that do not warrant an email.
func BuildMessage(event models.BookingEventPayload, locale string) (Message, bool) {
	switch event.Type {
	case models.EventBookingCreated:
		return createdMessage(event, locale), true
	case models.EventBookingCancelled:
		return cancelledMessage(event, locale), true
	case models.EventBookingStatusChanged:
		if event.PreviousStatus == models.BookingAwaitingApproval && event.Status == models.BookingConfirmed {
			return approvedMessage(event, locale), true
		}
	}
	return Message{}, false
}

func createdMessage(event models.BookingEventPayload, locale string) Message {
	var subject, opening string
	switch event.Status {
	case models.BookingAwaitingApproval:
		subject = "Booking Request Received"
		opening = "Your booking request was received and is waiting for approval."
	case models.BookingPending:
		subject = "Booking Awaiting Payment"
		opening = "Your booking is held until payment completes."
	default:
		subject = "Booking Confirmed"
		opening = "Your booking is confirmed."
	}

	lines := append([]string{opening, ""}, detailLines(event, locale)...)
	if event.PriceCents > 0 {
		lines = append(lines, fmt.Sprintf("Price: %s", models.FormatPriceCents(event.PriceCents, event.Currency)))
	}
	return Message{Subject: subject, Body: strings.Join(lines, "\n")}
}

func cancelledMessage(event models.BookingEventPayload, locale string) Message {
	lines := append([]string{"Your booking has been cancelled.", ""}, detailLines(event, locale)...)
	if event.RefundAmountCents > 0 {
		lines = append(lines, fmt.Sprintf("Refund: %s", models.FormatPriceCents(event.RefundAmountCents, event.Currency)))
	} else if event.PriceCents > 0 {
		lines = append(lines, "Refund: none")
	}
	return Message{Subject: "Booking Cancelled", Body: strings.Join(lines, "\n")}
}

func approvedMessage(event models.BookingEventPayload, locale string) Message {
	lines := append([]string{"Your booking request was approved.", ""}, detailLines(event, locale)...)
	return Message{Subject: "Booking Approved", Body: strings.Join(lines, "\n")}
}

func detailLines(event models.BookingEventPayload, locale string) []string {
	court := strings.TrimSpace(event.CourtName)
	if court == "" {
		court = fmt.Sprintf("#%d", event.CourtID)
	}
	date, timeRange := event.Date, event.StartTime+" - "+event.EndTime

	start, startErr := localtime.CreateInstant(event.Date, event.StartTime, event.Timezone)
	end, endErr := localtime.EndInstant(event.Date, event.StartTime, event.EndTime, event.Timezone)
	loc, locErr := localtime.LoadLocation(event.Timezone)
	if startErr == nil && endErr == nil && locErr == nil {
		date, timeRange = localtime.FormatDateTimeRange(start, end, loc, locale)
	}

	return []string{
		fmt.Sprintf("Court: %s", court),
		fmt.Sprintf("Date: %s", date),
		fmt.Sprintf("Time: %s", timeRange),
		fmt.Sprintf("Booking: #%d", event.BookingID),
	}
}

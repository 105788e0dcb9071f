package models

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultPhoneRegion = "US"

var ErrInvalidGuestContact = errors.New("invalid guest contact")

// GuestContact identifies the person behind a booking with no registered player.
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Normalize trims the contact, validates the email and rewrites the phone
// number in E.164 form.
func (g GuestContact) Normalize(region string) (GuestContact, error) {
	out := GuestContact{
		Name:  strings.TrimSpace(g.Name),
		Email: strings.TrimSpace(g.Email),
		Phone: strings.TrimSpace(g.Phone),
	}
	if out.Name == "" {
		return GuestContact{}, fmt.Errorf("%w: guest name is required", ErrInvalidGuestContact)
	}
	if out.Email != "" {
		addr, err := mail.ParseAddress(out.Email)
		if err != nil {
			return GuestContact{}, fmt.Errorf("%w: guest email is invalid", ErrInvalidGuestContact)
		}
		out.Email = strings.ToLower(addr.Address)
	}
	if out.Phone != "" {
		phone, err := NormalizePhone(out.Phone, region)
		if err != nil {
			return GuestContact{}, err
		}
		out.Phone = phone
	}
	return out, nil
}

// NormalizePhone parses a phone number and formats it as E.164.
func NormalizePhone(raw, region string) (string, error) {
	if strings.TrimSpace(region) == "" {
		region = defaultPhoneRegion
	}
	number, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", fmt.Errorf("%w: guest phone is invalid", ErrInvalidGuestContact)
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("%w: guest phone is invalid", ErrInvalidGuestContact)
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// ParseLegacyGuestNotes reads guest contact details that older clients folded
// into the notes column, either as "Guest: ...", "Email: ..." and "Phone: ..."
// lines or as a single "Guest: name | email | phone" line.
// It returns the contact (nil when no guest line exists) and the remaining notes.
func ParseLegacyGuestNotes(notes string) (*GuestContact, string) {
	if strings.TrimSpace(notes) == "" {
		return nil, notes
	}

	var guest GuestContact
	found := false
	var rest []string
	for _, line := range strings.Split(notes, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			rest = append(rest, line)
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "guest", "guest name":
			// Some rows carry everything on one line: "Guest: name | email | phone".
			parts := strings.Split(value, "|")
			guest.Name = strings.TrimSpace(parts[0])
			if len(parts) > 1 {
				guest.Email = strings.TrimSpace(parts[1])
			}
			if len(parts) > 2 {
				guest.Phone = strings.TrimSpace(parts[2])
			}
			found = true
		case "email", "guest email":
			guest.Email = value
		case "phone", "guest phone":
			guest.Phone = value
		default:
			rest = append(rest, line)
		}
	}
	if !found || guest.Name == "" {
		return nil, notes
	}
	return &guest, strings.TrimSpace(strings.Join(rest, "\n"))
}

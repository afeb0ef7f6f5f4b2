package sender

import "net/mail"

// envelopeAddress strips a display name: "Zenhaven <orders@x.dev>" -> "orders@x.dev".
func envelopeAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return from
}

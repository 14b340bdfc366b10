package whatsapp

import "errors"

var (
	ErrClientUnavailable = errors.New("whatsapp client not available")
	ErrNotConnected      = errors.New("whatsapp client not connected")
	ErrNotLoggedIn       = errors.New("whatsapp session not logged in")
	ErrNoQRAvailable     = errors.New("no qr code available")
)

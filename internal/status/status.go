package status

import "errors"

var (
	ErrAuthentication       = errors.New("realtime: authentication required")
	ErrAuthorization        = errors.New("realtime: not authorized for group")
	ErrUnknownConnection    = errors.New("realtime: unknown connection")
	ErrTransportUnavailable = errors.New("realtime: transport not initialized")
	ErrMalformedEvent       = errors.New("realtime: malformed event")
	ErrMissingClub          = errors.New("realtime: payload has no club id")

	ErrSlotUnavailable = errors.New("slot: slot already locked")
	ErrSlotNotOwned    = errors.New("slot: slot locked by another user")

	ErrFailedPayment = errors.New("payment: payment failed")
)

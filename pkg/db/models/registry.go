package models

// All lists every persisted model. Used by sqlite development mode and by
// package tests to build a schema without running goose.
func All() []any {
	return []any{
		&Principal{},
		&Cock{},
		&Plan{},
		&Subscription{},
		&PendingPayment{},
		&Training{},
		&Fight{},
		&Vaccine{},
		&MarketplaceListing{},
		&DeviceToken{},
		&OutboxEvent{},
	}
}

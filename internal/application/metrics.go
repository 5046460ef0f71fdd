package application

import "expvar"

// Counters exposed at /debug/vars.
var (
	registrationsTotal    = expvar.NewInt("auth_registrations")
	verificationsTotal    = expvar.NewInt("auth_verifications")
	loginsTotal           = expvar.NewInt("auth_logins")
	loginFailuresTotal    = expvar.NewInt("auth_login_failures")
	deliveryFailuresTotal = expvar.NewInt("auth_delivery_failures")
)

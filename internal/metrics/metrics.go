package metrics

import "expvar"

var (
	OrdersSubmitted = expvar.NewInt("orders_submitted")
	OrdersFilled    = expvar.NewInt("orders_filled")
	OrdersRejected  = expvar.NewInt("orders_rejected")
	OrdersCancelled = expvar.NewInt("orders_cancelled")
	OrdersExpired   = expvar.NewInt("orders_expired")
	OrdersFailed    = expvar.NewInt("orders_failed")
	RiskRejections  = expvar.NewInt("risk_rejections")
	BreakerTrips    = expvar.NewInt("breaker_trips")
	UnmatchedFills  = expvar.NewInt("unmatched_fills")
	ConnectorDrops  = expvar.NewInt("connector_drops")
)

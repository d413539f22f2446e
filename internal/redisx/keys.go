package redisx

import "time"

const (
	// Presence heartbeat: presence:{user_id} -> unix seconds
	KeyPresence = "presence:%s"

	// Cache settlement stats per seller: settlement:{seller_id} -> json
	KeySettlementStats = "settlement:%s"

	// Dedup event processing across restarts: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLPresence        = 90 * time.Second
	TTLSettlementStats = time.Minute
	TTLDedup           = 48 * time.Hour
)

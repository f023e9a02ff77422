package telemetryfeed

// platformRowDto is a row of platform_telemetry as debezium renders it.
type platformRowDto struct {
	PlatformID      string  `json:"platform_id"`
	ReferenceURI    string  `json:"reference_uri"`
	Load            float64 `json:"load"`
	KeyAvailability float64 `json:"key_availability"`
	Blacklisted     bool    `json:"blacklisted"`
	Whitelisted     bool    `json:"whitelisted"`
}

type Value[T any] struct {
	Before *T     `json:"before"`
	After  *T     `json:"after"`
	Op     string `json:"op"`
	TsMs   int64  `json:"ts_ms"`
}

package models

type PlatformID string

type Platform struct {
	ID           PlatformID
	ReferenceURI string

	// both in [0,1]
	Load            float64
	KeyAvailability float64

	Blacklisted bool
	Whitelisted bool
}

type TelemetrySnapshot struct {
	// registry revision the snapshot was read at, zero if backend has none
	Revision  int64
	Platforms map[PlatformID]Platform
}

func (s TelemetrySnapshot) Get(id PlatformID) (Platform, bool) {
	p, ok := s.Platforms[id]
	return p, ok
}

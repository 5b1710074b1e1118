package model

// GeoUnknown is the sentinel value used for both country and city when a
// lookup cannot produce a real answer.
const GeoUnknown = "Unknown"

// GeoLocation is the result of resolving an IP address to a location.
type GeoLocation struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// UnknownLocation returns the sentinel location used for unresolvable IPs.
func UnknownLocation() GeoLocation {
	return GeoLocation{Country: GeoUnknown, City: GeoUnknown}
}

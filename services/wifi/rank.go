package wifi

import (
	"slices"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
)

// Candidate is a ranked access point paired with its pre-shared key.
type Candidate struct {
	AP  types.AccessPoint
	PSK string
}

// Rank drops access points whose SSID is not in creds, orders the rest by
// descending signal strength (stable for equal RSSI) and drops those weaker
// than minRSSI. An empty result is Offline.
func Rank(aps []types.AccessPoint, creds []Credential, minRSSI int8) ([]Candidate, error) {
	out := make([]Candidate, 0, len(aps))
	for _, ap := range aps {
		psk, ok := lookup(creds, ap.SSID)
		if !ok {
			continue
		}
		out = append(out, Candidate{AP: ap, PSK: psk})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		return int(b.AP.RSSI) - int(a.AP.RSSI)
	})
	out = slices.DeleteFunc(out, func(c Candidate) bool { return c.AP.RSSI < minRSSI })
	if len(out) == 0 {
		return nil, errcode.New(errcode.Offline, "rank", "no usable network")
	}
	return out, nil
}

func lookup(creds []Credential, ssid string) (string, bool) {
	for _, c := range creds {
		if c.SSID == ssid {
			return c.PSK, true
		}
	}
	return "", false
}

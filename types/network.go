package types

// AuthMethod is the authentication an access point advertises.
type AuthMethod uint8

const (
	AuthUnknown AuthMethod = iota
	AuthNone
	AuthWEP
	AuthWPA
	AuthWPA2Personal
	AuthWPAWPA2Personal
	AuthWPA2Enterprise
	AuthWPA3Personal
	AuthWPA2WPA3Personal
)

var authNames = [...]string{"unknown", "none", "wep", "wpa", "wpa2", "wpa/wpa2", "wpa2-enterprise", "wpa3", "wpa2/wpa3"}

func (a AuthMethod) String() string {
	if int(a) < len(authNames) {
		return authNames[a]
	}
	return "unknown"
}

// ParseAuthMethod is the inverse of String. Unknown names map to AuthUnknown.
func ParseAuthMethod(s string) AuthMethod {
	for i, n := range authNames {
		if n == s {
			return AuthMethod(i)
		}
	}
	return AuthUnknown
}

// AccessPoint is one scan result.
type AccessPoint struct {
	SSID    string
	BSSID   [6]byte
	Channel uint8
	RSSI    int8 // dBm
	Auth    AuthMethod
}

// file: model/device.go

package model

import "strings"

// DeviceFingerprint describes the client context a token was issued to.
// It is a value type: build it once per request and pass it by value.
type DeviceFingerprint struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Browser    string `json:"browser,omitempty"`
}

// NewDeviceFingerprint trims its inputs and derives the browser family from the user agent.
func NewDeviceFingerprint(deviceID, deviceName, ip, userAgent, platform string) DeviceFingerprint {
	ua := strings.TrimSpace(userAgent)
	return DeviceFingerprint{
		DeviceID:   strings.TrimSpace(deviceID),
		DeviceName: strings.TrimSpace(deviceName),
		IPAddress:  strings.TrimSpace(ip),
		UserAgent:  ua,
		Platform:   strings.TrimSpace(platform),
		Browser:    browserFamily(ua),
	}
}

// SameDevice reports whether both fingerprints carry the same non-empty device id.
func (d DeviceFingerprint) SameDevice(other DeviceFingerprint) bool {
	return d.DeviceID != "" && d.DeviceID == other.DeviceID
}

// Order matters: Edge and Opera agents also contain "Chrome", Chrome agents contain "Safari".
var browserMarkers = []struct {
	marker string
	name   string
}{
	{"Edg/", "Edge"},
	{"OPR/", "Opera"},
	{"Firefox/", "Firefox"},
	{"Chrome/", "Chrome"},
	{"Safari/", "Safari"},
	{"curl/", "curl"},
}

func browserFamily(userAgent string) string {
	for _, b := range browserMarkers {
		if strings.Contains(userAgent, b.marker) {
			return b.name
		}
	}
	if userAgent == "" {
		return ""
	}
	return "Other"
}

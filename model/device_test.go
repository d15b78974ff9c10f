package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDeviceFingerprint(t *testing.T) {
	d := NewDeviceFingerprint(" dev-1 ", "Pixel", "10.0.0.1", "Mozilla/5.0 Chrome/120.0 Safari/537.36", "android")

	assert.Equal(t, "dev-1", d.DeviceID)
	assert.Equal(t, "Pixel", d.DeviceName)
	assert.Equal(t, "Chrome", d.Browser)
}

func TestBrowserFamily(t *testing.T) {
	cases := map[string]string{
		"":                                  "",
		"Mozilla/5.0 Chrome/120 Edg/120":    "Edge",
		"Mozilla/5.0 Firefox/118.0":         "Firefox",
		"Mozilla/5.0 Version/17 Safari/605": "Safari",
		"curl/8.4.0":                        "curl",
		"okhttp/4.12":                       "Other",
	}
	for ua, want := range cases {
		assert.Equal(t, want, browserFamily(ua), ua)
	}
}

func TestDeviceFingerprint_SameDevice(t *testing.T) {
	a := DeviceFingerprint{DeviceID: "dev-1"}
	assert.True(t, a.SameDevice(DeviceFingerprint{DeviceID: "dev-1", IPAddress: "other"}))
	assert.False(t, a.SameDevice(DeviceFingerprint{DeviceID: "dev-2"}))
	assert.False(t, DeviceFingerprint{}.SameDevice(DeviceFingerprint{}))
}

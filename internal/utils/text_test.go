package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceType(t *testing.T) {
	cases := []struct{ ua, want string }{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0", DeviceDesktop},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148", DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36", DeviceMobile},
		{"Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", DeviceTablet},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148", DeviceTablet},
		{"", DeviceDesktop},
	}
	for _, c := range cases {
		require.Equal(t, c.want, DeviceType(c.ua), c.ua)
	}
}

func TestInitials(t *testing.T) {
	require.Equal(t, "BS", Initials("Budi Santoso"))
	require.Equal(t, "AW", Initials("  ahmad  wijaya kusuma "))
	require.Equal(t, "R", Initials("Rina"))
	require.Equal(t, "", Initials("   "))
	require.Equal(t, "ÉZ", Initials("Émile Zola"))
	require.Equal(t, "ÖY", Initials("ömer yilmaz"))
	require.Equal(t, "ŁW", Initials("Łukasz Wójcik Nowak"))
}

func TestCleanTags(t *testing.T) {
	require.Equal(t, []string{"Road", "Bridge"}, CleanTags([]string{" Road", " ", "Bridge", "Road", ""}))
	require.Empty(t, CleanTags(nil))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0:00", FormatDuration(0))
	require.Equal(t, "1:05", FormatDuration(65))
	require.Equal(t, "12:30", FormatDuration(750))
	require.Equal(t, "0:00", FormatDuration(-3))
}

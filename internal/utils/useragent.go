package utils

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParsedUA is the flattened view of a client's User-Agent header kept with
// each session so users can recognize their own devices in a session list.
type ParsedUA struct {
	Device  string
	OS      string
	Browser string
}

// ParseUserAgent extracts device/OS/browser from a raw User-Agent string.
// Unknown or empty agents yield empty fields rather than an error.
func ParseUserAgent(raw string) ParsedUA {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParsedUA{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + version)
	device := "desktop"
	if ua.Mobile() {
		device = "mobile"
	} else if ua.Bot() {
		device = "bot"
	}
	return ParsedUA{
		Device:  device,
		OS:      ua.OS(),
		Browser: browser,
	}
}

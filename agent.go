package iptrail

import (
	"strings"

	"github.com/mssola/useragent"
)

// tabletMarkers are User-Agent substrings the parser reports as mobile
// or desktop but that identify tablets.
var tabletMarkers = []string{"ipad", "tablet", "playbook", "silk"}

// ParseAgent describes the client identified by a User-Agent string.
func ParseAgent(ua string) AgentInfo {
	parsed := useragent.New(ua)
	osInfo := parsed.OSInfo()

	return AgentInfo{
		UserAgent:  ua,
		Browser:    withVersion(parsed.Browser()),
		OS:         withVersion(osInfo.Name, osInfo.Version),
		DeviceType: deviceType(parsed, strings.ToLower(ua)),
	}
}

func deviceType(parsed *useragent.UserAgent, lowerUA string) string {
	switch {
	case parsed.Bot():
		return "bot"
	case containsAny(lowerUA, tabletMarkers):
		return "tablet"
	case parsed.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}

func withVersion(name, version string) string {
	return strings.TrimSpace(name + " " + version)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package mqttbridge

import (
	"strings"
)

// Bridge availability payloads.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusTopic carries the retained online/offline marker.
func StatusTopic(prefix string) string { return prefix + "/bridge/status" }

// HeartbeatTopic receives a message on every health check.
func HeartbeatTopic(prefix string) string { return prefix + "/bridge/heartbeat" }

// StateTopic carries the retained JSON snapshot of one zone.
func StateTopic(prefix, zoneID string) string { return prefix + "/zones/" + zoneID + "/state" }

// CommandTopic is where commands for a zone are accepted.
func CommandTopic(prefix, zoneID string) string { return prefix + "/zones/" + zoneID + "/command" }

// ResultTopic receives the outcome of each command.
func ResultTopic(prefix, zoneID string) string { return CommandTopic(prefix, zoneID) + "/result" }

// DiscoveryTopic is the Home Assistant config topic for a zone sensor.
func DiscoveryTopic(discoveryPrefix, zoneID string) string {
	return discoveryPrefix + "/sensor/" + objectID(zoneID) + "/config"
}

// zoneFromCommandTopic extracts the zone ID from a command topic.
func zoneFromCommandTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/zones/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/command")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// objectID makes a zone ID safe for Home Assistant, which only accepts
// [a-zA-Z0-9_-] in object IDs.
func objectID(zoneID string) string {
	var b strings.Builder
	b.WriteString("hifibridge_")
	for _, r := range zoneID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

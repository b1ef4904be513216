package tgui

import (
	"fmt"
	"strings"
)

// Data formats inline callback data as "ns:action:payload".
// Payload is kept as-is (no escaping).
func Data(ns, action, payload string) string {
	ns = strings.TrimSpace(ns)
	action = strings.TrimSpace(action)
	if payload == "" {
		return ns + ":" + action
	}
	return ns + ":" + action + ":" + payload
}

// Callback is parsed callback data.
type Callback struct {
	NS      string
	Action  string
	Payload string
}

// ParseData splits "ns:action[:payload]". The payload may itself contain ':'.
func ParseData(data string) (Callback, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Callback{}, false
	}
	cb := Callback{NS: parts[0], Action: parts[1]}
	if len(parts) == 3 {
		cb.Payload = parts[2]
	}
	return cb, true
}

// CheckData validates the Telegram size limit.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(data))
	}
	return nil
}

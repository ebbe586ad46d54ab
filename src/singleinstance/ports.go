package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550
)

// portRange returns the TCP ports to use. A positive pin wins; otherwise
// SINGLEINSTANCE_PORT_START and SINGLEINSTANCE_PORT_END (inclusive) are read,
// falling back to defaults and clamped to [1024, 65535].
func portRange(pin int) (int, int) {
	if pin > 0 {
		return pin, pin
	}
	start := defaultPortStart
	end := defaultPortEnd
	if v := os.Getenv("SINGLEINSTANCE_PORT_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if v := os.Getenv("SINGLEINSTANCE_PORT_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			end = n
		}
	}
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}

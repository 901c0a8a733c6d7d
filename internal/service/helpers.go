package service

import (
	"strconv"
	"strings"
)

// parseID reports whether raw is a positive numeric identifier.
func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

package handlers

import "strconv"

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

func parseLimit(raw string) int {
	if raw == "" {
		return defaultPageLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

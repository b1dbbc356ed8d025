package state

import "strconv"

func parseCounter(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func formatCounter(v uint64) string {
	return strconv.FormatUint(v, 10)
}

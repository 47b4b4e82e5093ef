package util

import "strconv"

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// Count renders "1 server" or "3 servers".
func Count(n int, singular, plural string) string {
	return strconv.Itoa(n) + " " + Pluralize(n, singular, plural)
}

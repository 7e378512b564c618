package callbacks

import (
	"strconv"
	"strings"
)

// Int64 parses a numeric payload such as a feedback or user id.
func Int64(payload string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
}

// Parts splits a compound payload like "123|456".
func Parts(payload string) ([]string, error) {
	if payload == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(payload, Sep), nil
}

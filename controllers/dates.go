package controllers

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseDate 接受 2006-01-02 或 RFC3339
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// parseDueDate 只有日期时按当天 23:59:59（UTC）计；为空时从 now 起算 defaultDays 天
func parseDueDate(s string, now time.Time, defaultDays int) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, defaultDays).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q", s)
	}
	return t.Add(24*time.Hour - time.Second), nil
}

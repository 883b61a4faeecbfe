package models

import (
	"strings"
	"time"
)

// RiskLevel is the manually assessed risk of the applicant.
type RiskLevel string

const (
	RiskUnknown    RiskLevel = "unknown"
	RiskLow        RiskLevel = "low"
	RiskMediumLow  RiskLevel = "medium_low"
	RiskMedium     RiskLevel = "medium"
	RiskMediumHigh RiskLevel = "medium_high"
	RiskHigh       RiskLevel = "high"
	RiskCritical   RiskLevel = "critical"
)

// DefaultSLADays applies when the risk level has no table entry and no
// override is supplied.
const DefaultSLADays = 5

var slaDaysByRisk = map[RiskLevel]int{
	RiskCritical:   1,
	RiskHigh:       3,
	RiskMediumHigh: 5,
	RiskMedium:     7,
	RiskMediumLow:  10,
	RiskLow:        14,
}

// ParseRiskLevel normalises the string supplied by the case-creation flow.
// Empty input means the risk has not been assessed yet.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch normalized {
	case "":
		return RiskUnknown, true
	case "mediumlow":
		return RiskMediumLow, true
	case "mediumhigh":
		return RiskMediumHigh, true
	}
	level := RiskLevel(normalized)
	switch level {
	case RiskUnknown, RiskLow, RiskMediumLow, RiskMedium, RiskMediumHigh, RiskHigh, RiskCritical:
		return level, true
	}
	return "", false
}

// SLADays returns the review window for the risk level.
func (r RiskLevel) SLADays() int {
	if days, ok := slaDaysByRisk[r]; ok {
		return days
	}
	return DefaultSLADays
}

// SLADueAt computes the due date from creation time. A positive override wins
// over the risk table.
func SLADueAt(level RiskLevel, createdAt time.Time, overrideDays int) time.Time {
	days := level.SLADays()
	if overrideDays > 0 {
		days = overrideDays
	}
	return createdAt.AddDate(0, 0, days)
}

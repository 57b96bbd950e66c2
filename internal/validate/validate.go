// Package validate holds small format checks shared by the store and
// scheduling layers: organization/monitor naming, and the cron
// expressions and IANA timezones a maintenance window is defined in.
package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
)

var orgSlugRE = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}[a-z0-9]$`)

// OrgSlug reports whether slug is a valid organization slug: lowercase
// alphanumerics and hyphens, 2-64 chars, not starting or ending with a
// hyphen.
func OrgSlug(slug string) bool {
	return orgSlugRE.MatchString(slug)
}

var monitorNameRE = regexp.MustCompile(`^[\p{L}\p{N} ._-]{1,120}$`)

// MonitorName reports whether name is an acceptable display name for a
// monitor.
func MonitorName(name string) bool {
	return monitorNameRE.MatchString(name)
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard five-field cron expression (or a "@hourly"
// style descriptor) into a cron.Schedule, shared by maintenance-window
// evaluation.
func ParseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("validate: cron expression is empty")
	}
	return cronParser.Parse(expr)
}

// CronExpression reports whether expr parses as a valid cron expression,
// without needing the caller to hold on to the resulting schedule.
func CronExpression(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// Timezone reports whether tz is a loadable IANA timezone name. An empty
// string is treated as UTC and accepted.
func Timezone(tz string) error {
	if tz == "" {
		return nil
	}
	_, err := time.LoadLocation(tz)
	return err
}

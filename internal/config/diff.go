package config

import (
	"sort"
	"strings"

	logx "gozo/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets — there are none in
// Config; bus credentials live outside it).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Subject) != strings.TrimSpace(newCfg.Subject) {
		changed = append(changed, "subject")
		attrs = append(attrs, logx.String("subject", strings.TrimSpace(newCfg.Subject)))
	}

	if strings.TrimSpace(oldCfg.Bucket) != strings.TrimSpace(newCfg.Bucket) {
		changed = append(changed, "bucket")
		attrs = append(attrs, logx.String("bucket", strings.TrimSpace(newCfg.Bucket)))
	}

	if strings.TrimSpace(oldCfg.Drain) != strings.TrimSpace(newCfg.Drain) {
		changed = append(changed, "drain")
		attrs = append(attrs, logx.String("drain", strings.TrimSpace(newCfg.Drain)))
	}

	if strings.TrimSpace(oldCfg.PollFloor) != strings.TrimSpace(newCfg.PollFloor) {
		changed = append(changed, "poll_floor")
		attrs = append(attrs, logx.String("poll_floor", strings.TrimSpace(newCfg.PollFloor)))
	}

	if oldCfg.Metrics.Enabled != newCfg.Metrics.Enabled ||
		strings.TrimSpace(oldCfg.Metrics.Addr) != strings.TrimSpace(newCfg.Metrics.Addr) {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", strings.TrimSpace(newCfg.Metrics.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

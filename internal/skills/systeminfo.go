package skills

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"
)

var systemInfoPattern = regexp.MustCompile(`(?i)(?:system\s*info(?:rmation)?|host\s*info|系统信息)`)

// SystemInfo reports basic host facts.
type SystemInfo struct {
	started time.Time
}

func NewSystemInfo() *SystemInfo {
	return &SystemInfo{started: time.Now()}
}

func (*SystemInfo) Name() string           { return "system_info" }
func (*SystemInfo) Description() string    { return "report host platform and runtime details" }
func (*SystemInfo) Permission() Permission { return PermSystem }

func (*SystemInfo) Match(prompt string) (map[string]string, bool) {
	if systemInfoPattern.MatchString(prompt) {
		return map[string]string{}, true
	}
	return nil, false
}

func (s *SystemInfo) Execute(_ context.Context, _ map[string]string) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "host: %s\n", hostname)
	fmt.Fprintf(&b, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "cpus: %d\n", runtime.NumCPU())
	fmt.Fprintf(&b, "go: %s\n", runtime.Version())
	fmt.Fprintf(&b, "working dir: %s\n", wd)
	fmt.Fprintf(&b, "uptime: %s", time.Since(s.started).Round(time.Second))
	return b.String(), nil
}

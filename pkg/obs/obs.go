// Package obs provides the structured component logger used across p8fs
// core, built on zerolog.
package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	baseOnce sync.Once
	base     zerolog.Logger
)

func initBase() {
	level := zerolog.InfoLevel
	if s := strings.ToLower(os.Getenv("P8FS_LOG_LEVEL")); s != "" {
		if lv, err := zerolog.ParseLevel(s); err == nil {
			level = lv
		}
	}
	var w io.Writer = os.Stderr
	if strings.EqualFold(os.Getenv("P8FS_LOG_FORMAT"), "console") {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Component returns a logger scoped to a named component (e.g. "repository",
// "rem.executor", "dreaming.moments").
func Component(name string) zerolog.Logger {
	baseOnce.Do(initBase)
	return base.With().Str("component", name).Logger()
}

// WithTenant returns a logger annotated with a tenant ID, for per-request or
// per-pipeline-run scoping.
func WithTenant(l zerolog.Logger, tenantID string) zerolog.Logger {
	return l.With().Str("tenant_id", tenantID).Logger()
}

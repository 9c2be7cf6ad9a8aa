package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// ensureInstanceID keeps a caller-provided id, otherwise derives one from the
// hostname so records from different replicas stay distinguishable.
func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}

	hn, _ := os.Hostname()
	return hn + "-" + uuid.NewString()[:8]
}

// commonAttr is the identity block stamped onto every record.
func commonAttr(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Time("started_at", time.Now()),
	}
}

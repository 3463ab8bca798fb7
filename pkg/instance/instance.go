package instance

import (
	"os"

	"github.com/angelmondragon/sheerent-backend/pkg/env"
)

// GetID identifies the running process in logs. An explicit
// SHEERENT_INSTANCE_ID wins, then the platform dyno name, then the hostname.
func GetID() string {
	if id := env.First("", "SHEERENT_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

package instance

import "os"

// GetID returns the process instance identifier used in log fields. Container
// platforms surface it as the hostname; LARKSPUR_INSTANCE_ID overrides.
func GetID() string {
	if id := os.Getenv("LARKSPUR_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

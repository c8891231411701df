package instance

import "os"

// GetID returns the process instance identifier used in log fields. Heroku
// sets DYNO; other hosts can set WORKER_ID.
func GetID() string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}

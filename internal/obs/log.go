package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// One process-wide logger writing bare JSON lines to stdout. No prefix and no
// flags: each line is a self-contained document with its own ts field.
var (
	logOnce sync.Once
	logDest *log.Logger
)

// Logger returns the shared line logger.
func Logger() *log.Logger {
	logOnce.Do(func() {
		logDest = log.New(os.Stdout, "", 0)
	})
	return logDest
}

// LogRequest serializes one request-completion entry. A marshal failure is
// itself reported as a log line rather than dropped.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

package warehouse

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// activityLog appends one line per mutating warehouse operation to
// activity.log under the warehouse root.
type activityLog struct {
	mu sync.Mutex
	f  *os.File
}

func openActivityLog(path string) (*activityLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	return &activityLog{f: f}, nil
}

func (l *activityLog) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stamp := time.Now().UTC().Format("2006-01-02 15:04:05")
	fmt.Fprintf(l.f, "[%s] INFO %s\n", stamp, fmt.Sprintf(format, args...))
}

func (l *activityLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

package scrape

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// DumpMarkup writes raw page markup to dir for offline inspection and
// returns the file path. An empty dir disables dumping.
func DumpMarkup(dir, prefix string, body []byte) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "scrape: create dump dir")
	}
	name := fmt.Sprintf("%s_%d.html", prefix, time.Now().UnixMilli())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", eris.Wrap(err, "scrape: write markup dump")
	}
	return path, nil
}

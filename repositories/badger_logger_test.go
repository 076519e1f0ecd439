package repositories

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

var _ badger.Logger = (*BadgerLogger)(nil)

func TestBadgerLogger(t *testing.T) {
	req := require.New(t)

	// Given a logger writing text at debug level
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewBadgerLogger(log)

	// When badger reports at every level
	logger.Errorf("compaction failed: %s\n", "disk full")
	logger.Warningf("slow write %dms\n", 42)
	logger.Infof("replaying %d entries", 3)
	logger.Debugf("value log gc")

	// Then each line keeps its level, loses its newline and is tagged
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	req.Len(lines, 4)
	req.Contains(string(lines[0]), `level=ERROR msg="compaction failed: disk full" component=badger`)
	req.Contains(string(lines[1]), `level=WARN msg="slow write 42ms"`)
	req.Contains(string(lines[2]), `level=INFO msg="replaying 3 entries"`)
	req.Contains(string(lines[3]), `level=DEBUG msg="value log gc"`)
}

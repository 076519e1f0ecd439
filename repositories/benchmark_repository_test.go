package repositories

import (
	"chat-relay/domain"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func Benchmark_Append(b *testing.B) {
	db, err := badger.Open(badger.DefaultOptions(b.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(b, err)
	defer db.Close()
	repository := NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelError), nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := repository.Append(fmt.Sprintf("room%d", i%100), message("Alice", int64(i)))
		if err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark_QueryRange_Narrow_Window checks that a seek on a busy room only pays for the window it reads.
func Benchmark_QueryRange_Narrow_Window(b *testing.B) {
	db, err := badger.Open(badger.DefaultOptions(b.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(b, err)
	defer db.Close()
	limit := 50
	repository := NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelError), &limit)

	const total = 100_000
	for i := 0; i < total; i++ {
		_, err := repository.Append("public", domain.StoredMessage{
			Content:    "hello",
			AuthorName: "Alice",
			AuthorID:   "alice",
			Timestamp:  int64(i),
		})
		require.NoError(b, err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		from := int64(i % (total - 50))
		messages, err := repository.QueryRange("public", from, from+49)
		if err != nil {
			b.Fatal(err)
		}
		if len(messages) != 50 {
			b.Fatalf("expected 50 messages, got %d", len(messages))
		}
	}
}

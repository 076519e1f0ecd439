package console

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/runtime/workers"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fakeUsers []domain.User

func (f fakeUsers) All() []domain.User { return f }

type fakeChats []domain.Group

func (f fakeChats) All() []domain.Group { return f }

type fakeStats workers.Stats

func (f fakeStats) Latest() workers.Stats { return workers.Stats(f) }

var start = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func newTestConsole(stats workers.Stats) (*Console, *int) {
	stopped := 0
	users := fakeUsers{
		{ID: "aZ3kq9Lm0P", Name: "alice", RemoteAddr: "10.0.0.1", Exists: true, ConnectedAt: start.Add(-3 * time.Minute)},
		{ID: "Qw8ErT5yU1", Name: "bob", RemoteAddr: domain.UnknownAddress, Exists: true, ConnectedAt: start.Add(-time.Hour)},
	}
	chats := fakeChats{domain.NewGroup("k2J9dLx0Pq7Rt5Vw3Yz1", start, "aZ3kq9Lm0P", "Qw8ErT5yU1")}
	c := NewConsole(logs.GetLoggerFromLevel(slog.LevelDebug), users, chats, fakeStats(stats),
		"v1.2.3", func() { stopped++ }, false)
	c.now = func() time.Time { return start }
	return c, &stopped
}

func TestConsole_Users(t *testing.T) {
	req := require.New(t)

	// Given a console over two connected users
	c, stopped := newTestConsole(workers.Stats{})
	var out bytes.Buffer

	// When the operator lists them
	exit := c.Execute("  users ", &out)

	// Then both rows are printed and the relay keeps running
	req.False(exit)
	req.Zero(*stopped)
	req.Contains(out.String(), "2 connected")
	req.Contains(out.String(), "aZ3kq9Lm0P")
	req.Contains(out.String(), "alice")
	req.Contains(out.String(), "10.0.0.1")
	req.Contains(out.String(), "Qw8ErT5yU1")
	req.Contains(out.String(), "3 minutes ago")
}

func TestConsole_Chats(t *testing.T) {
	req := require.New(t)

	c, _ := newTestConsole(workers.Stats{})
	var out bytes.Buffer

	req.False(c.Execute("CHATS", &out))
	req.Contains(out.String(), "1 chats")
	req.Contains(out.String(), "k2J9dLx0Pq7Rt5Vw3Yz1")
	req.Contains(out.String(), "aZ3kq9Lm0P,Qw8ErT5yU1")
}

func TestConsole_Version(t *testing.T) {
	req := require.New(t)

	c, _ := newTestConsole(workers.Stats{})
	var out bytes.Buffer

	req.False(c.Execute("version", &out))
	req.Equal("chat-relay v1.2.3\n", out.String())
}

func TestConsole_Stats(t *testing.T) {
	t.Run("before the first sample", func(t *testing.T) {
		req := require.New(t)
		c, _ := newTestConsole(workers.Stats{})
		var out bytes.Buffer

		req.False(c.Execute("stats", &out))
		req.Contains(out.String(), "No sample yet")
	})

	t.Run("after a sample", func(t *testing.T) {
		req := require.New(t)
		c, _ := newTestConsole(workers.Stats{
			Users: 2, Chats: 1, RSS: 3_000_000, CPUPercent: 1.5, Threads: 9, Goroutines: 14, SampledAt: start,
		})
		var out bytes.Buffer

		req.False(c.Execute("stats", &out))
		req.Contains(out.String(), "3.0 MB")
		req.Contains(out.String(), "1.5%")
		req.Contains(out.String(), "goroutines")
		req.Contains(out.String(), "14")
	})
}

func TestConsole_Help_Lists_Every_Command(t *testing.T) {
	req := require.New(t)

	c, _ := newTestConsole(workers.Stats{})
	var out bytes.Buffer

	req.False(c.Execute("help", &out))
	for _, name := range []string{"users", "chats", "stats", "version", "help", "exit, quit"} {
		req.Contains(out.String(), name)
	}
}

func TestConsole_Unknown_And_Empty(t *testing.T) {
	req := require.New(t)

	c, stopped := newTestConsole(workers.Stats{})
	var out bytes.Buffer

	req.False(c.Execute("", &out))
	req.Empty(out.String())

	req.False(c.Execute("kick bob", &out))
	req.Contains(out.String(), `Unknown command "kick bob"`)
	req.Zero(*stopped)
}

func TestConsole_Exit_Stops_Relay(t *testing.T) {
	for _, line := range []string{"exit", "quit", " Exit "} {
		t.Run(line, func(t *testing.T) {
			req := require.New(t)
			c, stopped := newTestConsole(workers.Stats{})
			var out bytes.Buffer

			req.True(c.Execute(line, &out))
			req.Equal(1, *stopped)
			req.Contains(out.String(), "Goodbye!")
		})
	}
}

package repositories

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultInspectLimit = 100

// InspectRow is one stored key as the debug inspector shows it.
type InspectRow struct {
	Key    string
	Room   string
	Time   string
	ID     string
	Author string
	Detail string
}

// NewInspectHandler lists raw history keys as a text table. It is meant for debugging
// and is only mounted when the log level is DEBUG.
// Query parameters: prefix (default "msg:") and limit (default 100).
func NewInspectHandler(db *badger.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = keyPrefix + ":"
		}
		limit := defaultInspectLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		rows, err := inspect(db, prefix, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(renderRows(rows))
	})
}

// WriteInspection renders up to limit keys under prefix to w, like the HTTP inspector.
func WriteInspection(db *badger.DB, w io.Writer, prefix string, limit int) error {
	rows, err := inspect(db, prefix, limit)
	if err != nil {
		return err
	}
	_, err = w.Write(renderRows(rows))
	return err
}

func inspect(db *badger.DB, prefix string, limit int) ([]InspectRow, error) {
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < limit; it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rows = append(rows, toInspectRow(string(item.Key()), val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// toInspectRow splits "msg:{room}:{ts}:{id}" and decodes the value when it is a record.
func toInspectRow(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:    key,
		Room:   "-",
		Time:   "--:--:--",
		ID:     "--------",
		Author: "-",
		Detail: fmt.Sprintf("Size: %d bytes", len(val)),
	}

	parts := strings.Split(key, ":")
	if len(parts) >= 4 {
		row.Room = parts[1]
		if ms, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Time = time.UnixMilli(ms).UTC().Format(time.RFC3339)
		}
		row.ID = parts[3]
		if len(row.ID) > 8 {
			row.ID = row.ID[:8]
		}
	}

	var record structpb.Struct
	if err := proto.Unmarshal(val, &record); err == nil && len(record.GetFields()) > 0 {
		message := fromRecord(&record)
		row.Author = message.AuthorName
		row.Detail = message.Content
	}
	return row
}

func renderRows(rows []InspectRow) []byte {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Key", "Room", "Time", "ID", "Author", "Detail"})
	table.SetAutoWrapText(false)
	for _, row := range rows {
		table.Append([]string{row.Key, row.Room, row.Time, row.ID, row.Author, row.Detail})
	}
	table.SetFooter([]string{"", "", "", "", "Rows", strconv.Itoa(len(rows))})
	table.Render()
	return buf.Bytes()
}

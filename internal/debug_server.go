// Package internal holds operator-facing plumbing that is not part of the
// product surface.
package internal

import (
	"chat-relay/domain"
	"chat-relay/projection"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

type StatsProvider func() map[string]any

type inspectRow struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// StartDebugServer exposes a read-only view of the Badger keyspace, the
// in-memory timeline projection and a stats endpoint on a separate port.
// Never expose this outside localhost, it dumps raw keys.
func StartDebugServer(db *badger.DB, port int, stats StatsProvider, timeline *projection.Timeline, log *slog.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /debug/keys", func(w http.ResponseWriter, r *http.Request) {
		prefix := []byte(r.URL.Query().Get("prefix"))
		var rows []inspectRow
		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					rows = append(rows, inspectRow{Key: string(item.Key()), Size: len(val)})
					return nil
				})
			}
			return nil
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	})

	mux.HandleFunc("GET /debug/timeline", func(w http.ResponseWriter, r *http.Request) {
		chatID := domain.ChatID(r.URL.Query().Get("chat_id"))
		n, _ := strconv.Atoi(r.URL.Query().Get("n"))
		body := map[string]any{
			"last":   timeline.LastMessage(chatID),
			"recent": timeline.Recent(chatID, n),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	mux.HandleFunc("GET /debug/stats", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		if stats != nil {
			body = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		log.Info("Debug server listening", "address", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("Debug server stopped", "error", err)
		}
	}()
}

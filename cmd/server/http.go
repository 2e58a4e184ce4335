package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"skirmish.gg/internal/persistence/indexdb"
	"skirmish.gg/internal/sim/world"
	"skirmish.gg/internal/transport/ws"
)

func newMux(w *world.World, idx runtimeIndex, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		resp := struct {
			ArenaID string             `json:"arena_id"`
			Metrics world.WorldMetrics `json:"metrics"`
			Index   *indexdb.Stats     `json:"index,omitempty"`
		}{
			ArenaID: w.ID(),
			Metrics: w.Metrics(),
		}
		if idx != nil {
			st := idx.Stats()
			resp.Index = &st
		}
		writeJSON(rw, http.StatusOK, resp)
	})
	mux.HandleFunc("/v1/leaderboard", leaderboardHandler(w, idx))
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())
	return mux
}

// leaderboardHandler serves the index when there is one, and the live
// scoreboard of the current arena otherwise.
func leaderboardHandler(w *world.World, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				writeJSON(rw, http.StatusBadRequest, map[string]any{"error": "limit must be in 1..500"})
				return
			}
			limit = n
		}

		if idx == nil {
			rows := make([]indexdb.LeaderboardRow, 0, limit)
			for _, e := range w.Metrics().Scoreboard {
				if len(rows) == limit {
					break
				}
				rows = append(rows, indexdb.LeaderboardRow{EntityID: e.EntityID, Name: e.Name, Kills: e.Kills, Deaths: e.Deaths, Dealt: e.Dealt})
			}
			writeJSON(rw, http.StatusOK, map[string]any{"source": "live", "rows": rows})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		rows, err := idx.Leaderboard(ctx, limit)
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
			return
		}
		if rows == nil {
			rows = []indexdb.LeaderboardRow{}
		}
		writeJSON(rw, http.StatusOK, map[string]any{"source": "index", "rows": rows})
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

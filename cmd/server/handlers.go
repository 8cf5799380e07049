package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/SchumyHao/fhwise-bridge/internal/player"

	"github.com/go-chi/chi/v5"
)

// getPlayer resolves the {id} URL param, by unique id or display name.
func getPlayer(r *http.Request) (*player.Player, bool) {
	return playerManager.Get(chi.URLParam(r, "id"))
}

func writeSnapshot(w http.ResponseWriter, s player.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"players": playerManager.Count(),
		"pending": playerManager.PendingCount(),
	})
}

func handleGetPlayers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(playerManager.Snapshots())
}

func handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	p, ok := getPlayer(r)
	if !ok {
		http.Error(w, "Player not found", http.StatusNotFound)
		return
	}
	writeSnapshot(w, p.Snapshot())
}

// handleCommand builds a handler that runs one player command and
// returns the refreshed snapshot. Unsupported commands map to 400,
// device failures to 502.
func handleCommand(name string, op func(*player.Player) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := getPlayer(r)
		if !ok {
			http.Error(w, "Player not found", http.StatusNotFound)
			return
		}

		err := op(p)
		// Even a failed command can flip availability
		playerManager.NotifyChanged(p)
		if err != nil {
			log.Printf("Error running %s for %s: %v", name, p.Name(), err)
			status := http.StatusBadGateway
			if errors.Is(err, player.ErrUnsupported) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeSnapshot(w, p.Snapshot())
	}
}

func handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Level float64 `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	handleCommand("set volume", func(p *player.Player) error {
		return p.SetVolume(body.Level)
	})(w, r)
}

func handleSetMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	handleCommand("mute", func(p *player.Player) error {
		return p.SetMute(body.Muted)
	})(w, r)
}

func handleSetShuffle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Shuffle bool `json:"shuffle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	handleCommand("shuffle", func(p *player.Player) error {
		return p.SetShuffle(body.Shuffle)
	})(w, r)
}

func handleSetSoundMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	handleCommand("sound mode", func(p *player.Player) error {
		return p.SelectSoundMode(body.Mode)
	})(w, r)
}

// handleRefresh forces a poll outside the regular interval.
func handleRefresh(w http.ResponseWriter, r *http.Request) {
	handleCommand("refresh", (*player.Player).Update)(w, r)
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsHub.ServeWS(w, r)
}

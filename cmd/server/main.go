package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SchumyHao/fhwise-bridge/internal/bridge"
	"github.com/SchumyHao/fhwise-bridge/internal/discovery"
	"github.com/SchumyHao/fhwise-bridge/internal/mqtt"
	"github.com/SchumyHao/fhwise-bridge/internal/player"
	"github.com/SchumyHao/fhwise-bridge/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// quietPaths are endpoints that get polled frequently and shouldn't spam logs
var quietPaths = map[string]bool{
	"/health":      true,
	"/api/players": true,
}

// quietPrefixes are path prefixes that shouldn't spam logs
var quietPrefixes = []string{
	"/ws",
}

// ConditionalLogger is a middleware that skips logging for certain paths
func ConditionalLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check exact matches
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		// Check prefix matches
		for _, prefix := range quietPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

type Config struct {
	Port          string
	Players       []player.DeviceConfig
	PollInterval  int // seconds
	SetupRetry    int // seconds
	DeviceTimeout int // seconds
	PlaylistFile  string
	// MQTT settings
	MQTTHost      string
	MQTTPort      int
	MQTTUsername  string
	MQTTPassword  string
	MQTTBaseTopic string
	// mDNS discovery settings
	DiscoveryEnabled  bool
	DiscoveryInterval int // seconds
}

var playerManager *player.Manager
var mqttClient *mqtt.Client
var mqttBridge *bridge.Bridge
var wsHub *websocket.Hub

func main() {
	// Load .env file if present (for local dev)
	_ = godotenv.Load()

	// Parse MQTT port
	mqttPort, _ := strconv.Atoi(getEnv("MQTT_PORT", "1883"))

	cfg := Config{
		Port:              getEnv("PORT", "8090"),
		Players:           parsePlayers(getEnv("PLAYERS", "")),
		PollInterval:      parseIntEnv("POLL_INTERVAL", 10),
		SetupRetry:        parseIntEnv("SETUP_RETRY", 30),
		DeviceTimeout:     parseIntEnv("DEVICE_TIMEOUT", 5),
		PlaylistFile:      getEnv("PLAYLIST_FILE", ""),
		MQTTHost:          getEnv("MQTT_HOST", ""),
		MQTTPort:          mqttPort,
		MQTTUsername:      getEnv("MQTT_USERNAME", ""),
		MQTTPassword:      getEnv("MQTT_PASSWORD", ""),
		MQTTBaseTopic:     getEnv("MQTT_BASE_TOPIC", bridge.DefaultBaseTopic),
		DiscoveryEnabled:  getEnv("DISCOVERY_ENABLED", "false") == "true",
		DiscoveryInterval: parseIntEnv("DISCOVERY_INTERVAL", 60),
	}

	// Initialize the player manager
	playerManager = player.NewManager(
		time.Duration(cfg.PollInterval)*time.Second,
		time.Duration(cfg.SetupRetry)*time.Second,
		log.Default(),
	)

	// Load the playlist override if configured
	if cfg.PlaylistFile != "" {
		tracks, err := loadPlaylist(cfg.PlaylistFile)
		if err != nil {
			log.Printf("Warning: Failed to load playlist %s: %v", cfg.PlaylistFile, err)
		} else {
			playerManager.SetPlaylist(tracks)
			log.Printf("Loaded %d tracks from %s", len(tracks), cfg.PlaylistFile)
		}
	}

	// Register configured devices; unreachable ones are retried on the
	// setup-retry interval
	deviceTimeout := time.Duration(cfg.DeviceTimeout) * time.Second
	for _, dc := range cfg.Players {
		dc.Timeout = deviceTimeout
		if err := playerManager.Add(dc); err != nil {
			log.Printf("Warning: Failed to add player %s: %v", dc.Name, err)
		}
	}
	if len(cfg.Players) == 0 && !cfg.DiscoveryEnabled {
		log.Println("Warning: PLAYERS not set and discovery disabled, nothing to control")
	}

	// Initialize WebSocket hub
	wsHub = websocket.NewHub()
	go wsHub.Run()
	wsHub.SetInitialEvents(func() []websocket.Event {
		snaps := playerManager.Snapshots()
		events := make([]websocket.Event, 0, len(snaps))
		for _, s := range snaps {
			events = append(events, websocket.Event{Type: "player_state", Payload: s})
		}
		return events
	})
	log.Println("WebSocket hub started")

	// Initialize the MQTT bridge
	if cfg.MQTTHost != "" {
		statusTopic := bridge.StatusTopic(cfg.MQTTBaseTopic)
		mqttClient = mqtt.NewClient(mqtt.Config{
			Host:          cfg.MQTTHost,
			Port:          cfg.MQTTPort,
			Username:      cfg.MQTTUsername,
			Password:      cfg.MQTTPassword,
			ClientID:      "fhwise-bridge-" + uuid.NewString()[:8],
			Subscriptions: []string{bridge.CommandFilter(cfg.MQTTBaseTopic)},
			WillTopic:     statusTopic,
			WillPayload:   "offline",
			BirthTopic:    statusTopic,
			BirthPayload:  "online",
		})
		mqttBridge = bridge.New(mqttClient, playerManager, cfg.MQTTBaseTopic, log.Default())
		mqttClient.SetMessageHandler(mqttBridge.HandleMessage)

		go func() {
			if err := mqttClient.Connect(); err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			}
		}()
		log.Printf("MQTT client connecting to %s:%d", cfg.MQTTHost, cfg.MQTTPort)
	} else {
		log.Println("Info: MQTT not configured (optional)")
	}

	// Fan player state changes out to WebSocket clients and the broker
	playerManager.OnUpdate(func(s player.Snapshot) {
		wsHub.BroadcastPlayerState(s)
		if mqttBridge != nil {
			mqttBridge.PublishState(s)
		}
	})
	playerManager.Start(context.Background())

	// mDNS discovery for unconfigured devices
	if cfg.DiscoveryEnabled {
		browser := discovery.NewBrowser(time.Duration(cfg.DiscoveryInterval) * time.Second)
		browser.Start()
		go func() {
			for dev := range browser.Devices() {
				playerManager.AddDiscovered(dev.Name, dev.Host, dev.Port)
			}
		}()
		log.Println("mDNS discovery enabled")
	}

	r := newRouter()

	log.Printf("Server starting on :%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(ConditionalLogger)
	r.Use(middleware.Compress(5))

	// Health
	r.Get("/health", handleHealth)

	// Player API
	r.Get("/api/players", handleGetPlayers)
	r.Get("/api/players/{id}", handleGetPlayer)
	r.Post("/api/players/{id}/play", handleCommand("play", (*player.Player).Play))
	r.Post("/api/players/{id}/pause", handleCommand("pause", (*player.Player).Pause))
	r.Post("/api/players/{id}/turn_on", handleCommand("turn on", (*player.Player).TurnOn))
	r.Post("/api/players/{id}/turn_off", handleCommand("turn off", (*player.Player).TurnOff))
	r.Post("/api/players/{id}/volume/up", handleCommand("volume up", (*player.Player).VolumeUp))
	r.Post("/api/players/{id}/volume/down", handleCommand("volume down", (*player.Player).VolumeDown))
	r.Post("/api/players/{id}/volume", handleSetVolume)
	r.Post("/api/players/{id}/mute", handleSetMute)
	r.Post("/api/players/{id}/shuffle", handleSetShuffle)
	r.Post("/api/players/{id}/sound_mode", handleSetSoundMode)
	r.Post("/api/players/{id}/next", handleCommand("next track", (*player.Player).NextTrack))
	r.Post("/api/players/{id}/previous", handleCommand("previous track", (*player.Player).PreviousTrack))
	r.Post("/api/players/{id}/clear_playlist", handleCommand("clear playlist", (*player.Player).ClearPlaylist))
	r.Post("/api/players/{id}/refresh", handleRefresh)

	// WebSocket
	r.Get("/ws", handleWebSocket)

	return r
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

// parsePlayers parses the PLAYERS env var format:
// "name:host,name2:host2:port,name3:host3:port:category"
func parsePlayers(s string) []player.DeviceConfig {
	if s == "" {
		return nil
	}
	var players []player.DeviceConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 {
			log.Printf("Warning: Ignoring malformed player entry %q", entry)
			continue
		}
		dc := player.DeviceConfig{
			Name: strings.TrimSpace(parts[0]),
			Host: strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 {
			if port, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil {
				dc.Port = port
			} else {
				log.Printf("Warning: Ignoring bad port in player entry %q", entry)
			}
		}
		if len(parts) > 3 {
			dc.Category = strings.TrimSpace(parts[3])
		}
		players = append(players, dc)
	}
	return players
}

// loadPlaylist reads a JSON track list: [{"artist":"...","title":"..."}]
func loadPlaylist(path string) ([]player.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tracks []player.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tracks, nil
}

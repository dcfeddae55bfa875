package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
	"github.com/wricardo/memory-match-game/transport/websocket"
)

const maxBodyBytes = 1 << 20

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	handler http.Handler
	origins []string
	static  string
}

// Option configures a Server
type Option func(*Server)

// WithAllowedOrigins limits CORS to the given origins. Empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithStaticDir serves the game client from dir for every unmatched path
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.static = dir }
}

// NewServer creates a new API server. hub may be nil when live updates are not needed.
func NewServer(gameService service.GameService, hub *websocket.Hub, opts ...Option) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	game := s.router.PathPrefix("/game").Subrouter()
	game.HandleFunc("/config", s.handleGameConfig).Methods("GET")
	game.HandleFunc("/start", s.handleStart).Methods("POST")
	game.HandleFunc("/{id}", s.handleGetSession).Methods("GET")
	game.HandleFunc("/{id}/flip", s.handleFlip).Methods("POST")
	game.HandleFunc("/{id}/give-up", s.handleGiveUp).Methods("POST")

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/levels", s.handleListLevels).Methods("GET")
	admin.HandleFunc("/levels", s.handleCreateLevel).Methods("POST")
	admin.HandleFunc("/levels/{id}", s.handleUpdateLevel).Methods("PUT")
	admin.HandleFunc("/levels/{id}", s.handleDeleteLevel).Methods("DELETE")
	admin.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	admin.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")
	admin.HandleFunc("/webhook/test", s.handleTestWebhook).Methods("POST")
	admin.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.static != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.static)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondServiceError maps engine errors onto HTTP statuses. ErrGameOver is
// checked before ErrInvalidFlip because it wraps it.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, engine.ErrLevelNotFound):
		status, code = http.StatusNotFound, "level_not_found"
	case errors.Is(err, engine.ErrGameOver):
		status, code = http.StatusConflict, "game_over"
	case errors.Is(err, engine.ErrInvalidFlip):
		status, code = http.StatusBadRequest, "invalid_flip"
	case errors.Is(err, engine.ErrInvalidConfiguration):
		status, code = http.StatusUnprocessableEntity, "invalid_configuration"
	case errors.Is(err, engine.ErrSessionConflict):
		status, code = http.StatusConflict, "session_conflict"
	case errors.Is(err, engine.ErrTimeExpired):
		status, code = http.StatusConflict, service.CodeTimeExpired
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal server error"
	}
	respondError(w, status, code, msg)
}

// decodeBody reads an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) broadcast(view *service.SessionView) {
	if s.hub != nil {
		s.hub.BroadcastSession(view)
	}
}

// Game handlers

func (s *Server) handleGameConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.GameConfig(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID    string `json:"player_id"`
		PlayerEmail string `json:"player_email"`
		LevelID     string `json:"level_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	playerID := req.PlayerID
	if playerID == "" {
		playerID = req.PlayerEmail
	}

	view, err := s.service.Start(r.Context(), service.StartRequest{PlayerID: playerID, LevelID: req.LevelID})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// flipRequest accepts both field spellings used by clients
type flipRequest struct {
	CardIndex1 *int `json:"card_index_1"`
	CardIndex2 *int `json:"card_index_2"`
	First      *int `json:"first"`
	Second     *int `json:"second"`
}

func (f flipRequest) indices() (int, int, bool) {
	a, b := f.CardIndex1, f.CardIndex2
	if a == nil {
		a = f.First
	}
	if b == nil {
		b = f.Second
	}
	if a == nil || b == nil {
		return 0, 0, false
	}
	return *a, *b, true
}

func (s *Server) handleFlip(w http.ResponseWriter, r *http.Request) {
	var req flipRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_flip", "invalid JSON body")
		return
	}
	first, second, ok := req.indices()
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_flip", "card_index_1 and card_index_2 are required")
		return
	}

	res, err := s.service.Flip(r.Context(), mux.Vars(r)["id"], first, second)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.broadcast(res.Session)
	respondJSON(w, http.StatusOK, res)
}

// handleGiveUp ignores the body so navigator.sendBeacon can call it on page unload
func (s *Server) handleGiveUp(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GiveUp(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.broadcast(view)
	respondJSON(w, http.StatusOK, view)
}

// Admin handlers

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.service.Levels(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(levels),
		"levels": levels,
	})
}

func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	level := engine.Level{Active: true}
	if err := decodeBody(r, &level); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_configuration", "invalid JSON body")
		return
	}
	saved, err := s.service.SaveLevel(r.Context(), level)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateLevel(w http.ResponseWriter, r *http.Request) {
	var level engine.Level
	if err := decodeBody(r, &level); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_configuration", "invalid JSON body")
		return
	}
	level.ID = mux.Vars(r)["id"]
	saved, err := s.service.SaveLevel(r.Context(), level)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteLevel(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteLevel(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.service.Settings(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settings.Masked())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.service.Settings(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	// partial updates overlay the masked current settings
	settings := current.Masked()
	if err := decodeBody(r, &settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_configuration", "invalid JSON body")
		return
	}
	updated, err := s.service.UpdateSettings(r.Context(), settings)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated.Masked())
}

func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	var target service.WebhookTarget
	if err := decodeBody(r, &target); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	var override *service.WebhookTarget
	if target.URL != "" {
		override = &target
	}

	res, err := s.service.TestWebhook(r.Context(), override)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotFound, "not_found", "live updates are disabled")
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session parameter required")
		return
	}

	if _, err := s.service.Get(r.Context(), sessionID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	s.hub.ServeWS(w, r, sessionID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

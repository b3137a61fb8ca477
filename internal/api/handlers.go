package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sahayak/tutor-agent/internal/gamify"
	"github.com/sahayak/tutor-agent/internal/store"
)

func (s *Server) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid conversation id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (s *Server) learnerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "invalid learner id")
		return 0, false
	}
	return id, true
}

// Conversations

func (s *Server) handleConversationCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LearnerID int64  `json:"learner_id"`
		Title     string `json:"title"`
		Guest     bool   `json:"guest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LearnerID <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "learner_id is required")
		return
	}
	if req.Title == "" {
		req.Title = "New Chat"
	}

	if _, err := s.store.EnsureLearner(r.Context(), req.LearnerID); err != nil {
		s.logger.Error("ensure learner", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not create conversation")
		return
	}
	conv, err := s.store.CreateConversation(r.Context(), req.LearnerID, req.Title, req.Guest)
	if err != nil {
		s.logger.Error("create conversation", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not create conversation")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, conv, s.logger)
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	learnerID, err := strconv.ParseInt(r.URL.Query().Get("learner_id"), 10, 64)
	if err != nil || learnerID <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "learner_id query parameter is required")
		return
	}

	convs, err := s.store.ListConversations(r.Context(), learnerID)
	if err != nil {
		s.logger.Error("list conversations", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not list conversations")
		return
	}
	if convs == nil {
		convs = []*store.Conversation{}
	}
	writeJSON(w, convs, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	conv, err := s.store.GetConversation(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("get conversation", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	writeJSON(w, conv, s.logger)
}

func (s *Server) handleConversationRename(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		s.errorResponse(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := s.store.SetTitle(r.Context(), id, req.Title); err != nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, map[string]string{"id": id.String(), "title": req.Title}, s.logger)
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteConversation(r.Context(), id); err != nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"}, s.logger)
}

func (s *Server) handleConversationDeleteAll(w http.ResponseWriter, r *http.Request) {
	learnerID, err := strconv.ParseInt(r.URL.Query().Get("learner_id"), 10, 64)
	if err != nil || learnerID <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "learner_id query parameter is required")
		return
	}

	deleted, err := s.store.DeleteAllConversations(r.Context(), learnerID)
	if err != nil {
		s.logger.Error("delete conversations", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not delete conversations")
		return
	}
	writeJSON(w, map[string]any{"deleted": deleted}, s.logger)
}

// Turns and history

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	var req struct {
		LearnerID int64  `json:"learner_id"`
		Message   string `json:"message"`
		Guest     bool   `json:"guest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.LearnerID <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "learner_id is required")
		return
	}

	result, err := s.agent.ProcessTurn(r.Context(), req.Message, id, req.LearnerID, req.Guest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.errorResponse(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("turn failed", "conversation", id, "error", err)
		s.errorResponse(w, http.StatusBadGateway, "The tutor could not respond right now. Please try again.")
		return
	}
	writeJSON(w, result, s.logger)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	msgs, err := s.store.Messages(r.Context(), id)
	if err != nil {
		s.logger.Error("load messages", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	writeJSON(w, msgs, s.logger)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "markdown":
		md, err := s.store.TranscriptMarkdown(r.Context(), id)
		if err != nil {
			s.errorResponse(w, http.StatusNotFound, "conversation not found")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(md))
	case "html":
		html, err := s.store.TranscriptHTML(r.Context(), id)
		if err != nil {
			s.errorResponse(w, http.StatusNotFound, "conversation not found")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	default:
		s.errorResponse(w, http.StatusBadRequest, "format must be markdown or html")
	}
}

// Learner administration

func (s *Server) handleMemoriesList(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learnerID(w, r)
	if !ok {
		return
	}

	records, err := s.memories.All(r.Context(), learnerID)
	if err != nil {
		s.logger.Error("list memories", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not list memories")
		return
	}
	writeJSON(w, map[string]any{
		"count":    len(records),
		"memories": records,
	}, s.logger)
}

func (s *Server) handleMemoriesDelete(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learnerID(w, r)
	if !ok {
		return
	}

	deleted, err := s.memories.DeleteAll(r.Context(), learnerID)
	if err != nil {
		s.logger.Error("delete memories", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not delete memories")
		return
	}
	writeJSON(w, map[string]any{"deleted": deleted}, s.logger)
}

func (s *Server) handleLearnerStats(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learnerID(w, r)
	if !ok {
		return
	}

	learner, err := s.store.GetLearner(r.Context(), learnerID)
	if errors.Is(err, sql.ErrNoRows) {
		s.errorResponse(w, http.StatusNotFound, "learner not found")
		return
	}
	if err != nil {
		s.logger.Error("get learner", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not load learner")
		return
	}

	level := gamify.LevelFor(learner.XP)
	var percent int
	if level.XPForNext > 0 {
		percent = 100 * level.XPIntoLevel / level.XPForNext
	}
	writeJSON(w, map[string]any{
		"learner_id":       learner.ID,
		"total_xp":         learner.XP,
		"level":            level.Number,
		"level_title":      level.Title,
		"xp_into_level":    level.XPIntoLevel,
		"xp_for_next":      level.XPForNext,
		"progress_percent": percent,
		"streak_days":      learner.StreakDays,
		"last_active":      learner.LastActive,
	}, s.logger)
}

func (s *Server) handleModelSettingsGet(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learnerID(w, r)
	if !ok {
		return
	}

	provider, apiKey, err := s.store.ModelSettings(r.Context(), learnerID)
	if err != nil {
		s.logger.Error("get model settings", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not load settings")
		return
	}
	writeJSON(w, map[string]any{
		"provider":    provider,
		"has_api_key": apiKey != "",
	}, s.logger)
}

func (s *Server) handleModelSettingsPut(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learnerID(w, r)
	if !ok {
		return
	}

	var req struct {
		Provider string `json:"provider"`
		APIKey   string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Provider {
	case "anthropic", "groq", "ollama":
	default:
		s.errorResponse(w, http.StatusBadRequest, "provider must be anthropic, groq, or ollama")
		return
	}

	if err := s.store.SetModelSettings(r.Context(), learnerID, req.Provider, req.APIKey); err != nil {
		s.logger.Error("set model settings", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	writeJSON(w, map[string]string{"status": "saved", "provider": req.Provider}, s.logger)
}

// Utilities

func (s *Server) handleEnhancePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		s.errorResponse(w, http.StatusBadRequest, "prompt is required")
		return
	}

	enhanced, err := s.agent.EnhancePrompt(r.Context(), req.Prompt)
	if err != nil {
		s.logger.Error("enhance prompt", "error", err)
		s.errorResponse(w, http.StatusBadGateway, "could not enhance prompt")
		return
	}
	writeJSON(w, map[string]string{
		"original": req.Prompt,
		"enhanced": enhanced,
	}, s.logger)
}

// Package fakeapi is an in-memory implementation of the HabitPilot REST API.
// It backs the client and sync tests and the hidden dev-server command.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/julianstephens/habitpilot/internal/constants"
	"github.com/julianstephens/habitpilot/internal/models"
)

type listResponse struct {
	Habits []models.Habit `json:"habits"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server holds habits in memory and computes streaks the way a backend would:
// a completion extends the streak only if the previous one was yesterday.
type Server struct {
	mu         sync.Mutex
	habits     map[string]models.Habit
	order      []string
	activities []models.Activity
	token      string
	now        func() time.Time

	unauthorized bool
	offline      bool
	failNext     int
	failStatus   int
	forced       *models.CompletionResult
	calls        map[string]int
}

func New() *Server {
	return &Server{
		habits: make(map[string]models.Habit),
		now:    time.Now,
		calls:  make(map[string]int),
	}
}

// SetToken makes every request require "Authorization: Bearer token".
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetUnauthorized makes every request fail with 401 until reset.
func (s *Server) SetUnauthorized(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unauthorized = v
}

// SetOffline makes the server drop every connection without replying, which
// clients observe as a transport failure.
func (s *Server) SetOffline(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = v
}

// FailNext makes the next n requests fail with status.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failStatus = status
}

// ForceCompletion overrides the reply of every following complete or undo call.
func (s *Server) ForceCompletion(res models.CompletionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = &res
}

// Seed inserts habits as if they had been created earlier.
func (s *Server) Seed(habits ...models.Habit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range habits {
		if _, ok := s.habits[h.ID]; !ok {
			s.order = append(s.order, h.ID)
		}
		s.habits[h.ID] = h
	}
}

func (s *Server) Habits() []models.Habit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *Server) Habit(id string) (models.Habit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[id]
	return h, ok
}

func (s *Server) Activities() []models.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Activity(nil), s.activities...)
}

// Calls returns how many requests reached the named route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) list() []models.Habit {
	out := make([]models.Habit, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.habits[id])
	}
	return out
}

// Handler returns the API routes as a *mux.Router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix(constants.APIPrefix).Subrouter()
	api.Use(s.gate)

	api.HandleFunc("/habits", s.listHabits).Methods("GET").Name("list")
	api.HandleFunc("/habits", s.createHabit).Methods("POST").Name("create")
	api.HandleFunc("/habits/{id}", s.updateHabit).Methods("PUT").Name("update")
	api.HandleFunc("/habits/{id}", s.deleteHabit).Methods("DELETE").Name("delete")
	api.HandleFunc("/habits/{id}/complete", s.completeHabit).Methods("POST").Name("complete")
	api.HandleFunc("/habits/{id}/undo", s.undoHabit).Methods("POST").Name("undo")
	api.HandleFunc("/activities", s.createActivity).Methods("POST").Name("activity")

	return r
}

// gate counts calls and applies auth and injected failures.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		s.mu.Lock()
		s.calls[name]++
		offline := s.offline
		unauthorized := s.unauthorized
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			unauthorized = true
		}
		failStatus := 0
		if !unauthorized && s.failNext > 0 {
			s.failNext--
			failStatus = s.failStatus
		}
		s.mu.Unlock()

		if offline {
			dropConnection(w)
			return
		}
		if unauthorized {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if failStatus != 0 {
			writeError(w, failStatus, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listHabits(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := listResponse{Habits: s.list()}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createHabit(w http.ResponseWriter, r *http.Request) {
	var draft models.HabitDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(draft.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	h := draft.ToHabit()
	h.ID = uuid.New().String()

	s.mu.Lock()
	s.habits[h.ID] = h
	s.order = append(s.order, h.ID)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) updateHabit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var h models.Habit
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.habits[id]
	if !ok {
		writeError(w, http.StatusNotFound, "habit not found")
		return
	}
	// Counters are server-owned; edits only touch descriptive fields
	h.ID = id
	h.Streak = existing.Streak
	h.TodayProgress = existing.TodayProgress
	h.LastCompletionDate = existing.LastCompletionDate
	h.PreviousCompletionDate = existing.PreviousCompletionDate
	s.habits[id] = h

	writeJSON(w, http.StatusOK, h)
}

func (s *Server) deleteHabit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.habits[id]; !ok {
		writeError(w, http.StatusNotFound, "habit not found")
		return
	}
	delete(s.habits, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) completeHabit(w http.ResponseWriter, r *http.Request) {
	s.mutateCompletion(w, r, func(h models.Habit, now time.Time) models.Habit {
		today := now.Format(constants.DateFormat)
		if h.LastCompletionDate == today {
			return h
		}
		yesterday := now.AddDate(0, 0, -1).Format(constants.DateFormat)
		if h.LastCompletionDate == yesterday {
			h.Streak++
		} else {
			h.Streak = 1
		}
		h.PreviousCompletionDate = h.LastCompletionDate
		h.LastCompletionDate = today
		if h.IsIncremental() {
			h.TodayProgress = h.DailyTarget
		} else {
			h.TodayProgress = 1
		}
		return h
	})
}

func (s *Server) undoHabit(w http.ResponseWriter, r *http.Request) {
	s.mutateCompletion(w, r, func(h models.Habit, now time.Time) models.Habit {
		if h.LastCompletionDate != now.Format(constants.DateFormat) {
			return h
		}
		if h.Streak > 0 {
			h.Streak--
		}
		h.LastCompletionDate = h.PreviousCompletionDate
		h.PreviousCompletionDate = ""
		h.TodayProgress = 0
		return h
	})
}

func (s *Server) mutateCompletion(w http.ResponseWriter, r *http.Request, apply func(models.Habit, time.Time) models.Habit) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[id]
	if !ok {
		writeError(w, http.StatusNotFound, "habit not found")
		return
	}
	h = apply(h, s.now())
	s.habits[id] = h

	res := models.CompletionResult{Streak: h.Streak, Progress: h.TodayProgress}
	if s.forced != nil {
		res = *s.forced
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) createActivity(w http.ResponseWriter, r *http.Request) {
	var a models.Activity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if a.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	s.mu.Lock()
	s.activities = append(s.activities, a)
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "offline")
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Package mockapi is an in-memory stand-in for the remote task service. It
// serves the same REST endpoints and push channel the client consumes and
// is used for local development and integration tests.
package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/idilsaglam/tasks/internal/api"
	"github.com/idilsaglam/tasks/internal/live"
	"github.com/idilsaglam/tasks/internal/model"
)

type account struct {
	model.User
	hash []byte
}

// Server holds users and tasks in memory.
type Server struct {
	log    *zap.Logger
	secret []byte
	ttl    time.Duration
	hub    *Hub
	newID  func() string

	mu       sync.Mutex
	accounts map[string]*account // by email
	tasks    map[string][]model.Task
}

// NewServer returns an empty Server signing tokens with secret.
func NewServer(secret string, ttl time.Duration, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Server{
		log:      log,
		secret:   []byte(secret),
		ttl:      ttl,
		hub:      newHub(log),
		newID:    uuid.NewString,
		accounts: map[string]*account{},
		tasks:    map[string][]model.Task{},
	}
}

// Hub exposes the push side, e.g. to inject events in tests.
func (s *Server) Hub() *Hub { return s.hub }

// Handler routes /api/... and /ws.
func (s *Server) Handler() http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RequestID)
	root.Use(middleware.Recoverer)

	root.Route("/api", func(r chi.Router) {
		// No Auth
		r.Post("/user/register", s.register)
		r.Post("/user/login", s.login)

		// Auth
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/task", s.listTasks)
			r.Post("/task", s.createTask)
			r.Put("/task/{id}", s.updateTask)
			r.Patch("/task/{id}", s.patchTask)
			r.Delete("/task/{id}", s.deleteTask)
		})
	})
	root.Handle("/ws", s.hub.Handler())
	return root
}

type authResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := api.ValidateRegistration(in.Username, in.Email, in.Password); err != nil {
		writeValidation(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not hash password", "")
		return
	}

	s.mu.Lock()
	if _, taken := s.accounts[email]; taken {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Email is already registered", "email")
		return
	}
	acc := &account{
		User: model.User{ID: s.newID(), Username: strings.TrimSpace(in.Username), Email: email},
		hash: hash,
	}
	s.accounts[email] = acc
	s.mu.Unlock()

	s.respondWithToken(w, http.StatusCreated, acc)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	acc := s.accounts[strings.ToLower(strings.TrimSpace(in.Email))]
	s.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword(acc.hash, []byte(in.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}
	s.respondWithToken(w, http.StatusOK, acc)
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, acc *account) {
	tok, err := s.issueToken(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token", "")
		return
	}
	writeJSON(w, status, authResponse{Token: tok, User: acc.User})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	s.mu.Lock()
	out := append([]model.Task{}, s.tasks[userID]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

type taskInput struct {
	Title  string       `json:"title"`
	Status model.Status `json:"status"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in taskInput
	if !decode(w, r, &in) {
		return
	}
	if in.Status == "" {
		in.Status = model.StatusPending
	}
	if err := api.ValidateTask(in.Title, in.Status); err != nil {
		writeValidation(w, err)
		return
	}
	userID := userFrom(r)
	now := time.Now().UTC()
	t := model.Task{
		ID:        s.newID(),
		Title:     strings.TrimSpace(in.Title),
		Status:    in.Status,
		OwnerID:   userID,
		CreatedAt: &now,
		UpdatedAt: &now,
	}

	s.mu.Lock()
	s.tasks[userID] = append(s.tasks[userID], t)
	s.mu.Unlock()

	s.hub.Broadcast(userID, live.TaskCreated, t)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var in taskInput
	if !decode(w, r, &in) {
		return
	}
	if err := api.ValidateTask(in.Title, in.Status); err != nil {
		writeValidation(w, err)
		return
	}
	s.mutate(w, r, live.TaskUpdated, func(t *model.Task) {
		t.Title = strings.TrimSpace(in.Title)
		t.Status = in.Status
	})
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request) {
	var in taskInput
	if !decode(w, r, &in) {
		return
	}
	if !in.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown status", "status")
		return
	}
	kind := live.TaskUpdated
	if in.Status == model.StatusCompleted {
		kind = live.TaskCompleted
	}
	s.mutate(w, r, kind, func(t *model.Task) {
		t.Status = in.Status
		if in.Title != "" {
			t.Title = strings.TrimSpace(in.Title)
		}
	})
}

// mutate applies fn to the caller's task {id}, broadcasts kind and writes
// the result.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, kind live.Kind, fn func(*model.Task)) {
	userID, id := userFrom(r), chi.URLParam(r, "id")

	s.mu.Lock()
	var (
		out   model.Task
		found bool
	)
	for i := range s.tasks[userID] {
		t := &s.tasks[userID][i]
		if t.ID != id {
			continue
		}
		fn(t)
		now := time.Now().UTC()
		t.UpdatedAt = &now
		out, found = *t, true
		break
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "Task not found", "")
		return
	}
	s.hub.Broadcast(userID, kind, out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	userID, id := userFrom(r), chi.URLParam(r, "id")

	s.mu.Lock()
	found := false
	list := s.tasks[userID]
	for i := range list {
		if list[i].ID == id {
			s.tasks[userID] = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "Task not found", "")
		return
	}
	s.hub.Broadcast(userID, live.TaskDeleted, id)
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// -------------- response helpers ----------------

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, field string) {
	body := map[string]string{"message": msg}
	if field != "" {
		body["field"] = field
	}
	writeJSON(w, status, body)
}

func writeValidation(w http.ResponseWriter, err error) {
	var ve *api.ValidationError
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message": "validation failed",
		"errors":  ve.Fields,
	})
}

// Package testserver runs an in-process stand-in for the Autonomeal service. It speaks the
// same JSON contract as the real auth and resource endpoints and keeps the session in a
// signed cookie, so client tests exercise real cookie handling end to end.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

// SessionCookieName is the cookie carrying the signed session.
const SessionCookieName = "session"

type user struct {
	Username     string
	PasswordHash []byte
	Email        string
	Name         string
}

type recipe struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Difficulty  string   `json:"difficulty"`
	CookTime    string   `json:"cookTime"`
	Rating      float64  `json:"rating"`
	Image       string   `json:"image"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

type override struct {
	status int
	body   string
}

// Server is a fake Autonomeal backend.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	codec          *securecookie.SecureCookie
	users          map[string]*user
	recipes        map[string][]recipe
	overrides      map[string]override
	before         map[string]func()
	checkAuthHook  func()
	checkAuthCalls int
	requestIDs     []string
}

// New starts a server and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		codec:     newCodec(),
		users:     make(map[string]*user),
		recipes:   make(map[string][]recipe),
		overrides: make(map[string]override),
		before:    make(map[string]func()),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func newCodec() *securecookie.SecureCookie {
	return securecookie.New(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
}

// AddUser registers an account directly.
func (s *Server) AddUser(username, password, email, name string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("testserver: hash password: %v", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(username)] = &user{
		Username:     strings.ToLower(username),
		PasswordHash: hash,
		Email:        strings.ToLower(email),
		Name:         name,
	}
}

// ExpireSessions invalidates every issued session cookie by rotating the signing keys.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codec = newCodec()
}

// OnCheckAuth installs fn to run before /api/check-auth answers. Tests use it to hold a probe
// in flight.
func (s *Server) OnCheckAuth(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAuthHook = fn
}

// CheckAuthCalls returns how many probes the server has answered.
func (s *Server) CheckAuthCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkAuthCalls
}

// RequestIDs returns the X-Request-Id headers seen, in arrival order.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

// Respond makes the next request to method+path answer with status and raw body.
func (s *Server) Respond(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[method+" "+path] = override{status: status, body: body}
}

// Before runs fn once, ahead of the next request to method+path and any Respond override.
// Tests use it to hold a request in flight.
func (s *Server) Before(method, path string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before[method+" "+path] = fn
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/signup", s.handleSignup)
		r.Post("/logout", s.handleLogout)
	})

	r.Get("/api/check-auth", s.handleCheckAuth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/api/generate-recipe", s.handleGenerateRecipe)
		r.Post("/api/generate-dish-image", s.handleGenerateDishImage)
		r.Post("/api/analyze-image", s.handleAnalyzeImage)
		r.Get("/api/recipes", s.handleListRecipes)
		r.Post("/api/recipes", s.handleSaveRecipe)
		r.Get("/api/recipes/{id}", s.handleGetRecipe)
		r.Get("/protected/profile", s.handleGetProfile)
		r.Post("/protected/profile", s.handlePutProfile)
		r.Put("/protected/profile", s.handlePutProfile)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-Id"))
		hook := s.before[key]
		delete(s.before, key)
		s.mu.Unlock()
		if hook != nil {
			hook()
		}

		s.mu.Lock()
		o, ok := s.overrides[key]
		if ok {
			delete(s.overrides, key)
		}
		s.mu.Unlock()
		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(o.status)
			_, _ = w.Write([]byte(o.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionUser returns the username stored in a valid session cookie.
func (s *Server) sessionUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()
	var values map[string]string
	if err := codec.Decode(SessionCookieName, cookie.Value, &values); err != nil {
		return "", false
	}
	name := values["name"]
	s.mu.Lock()
	_, exists := s.users[name]
	s.mu.Unlock()
	return name, name != "" && exists
}

func (s *Server) startSession(w http.ResponseWriter, username string) error {
	s.mu.Lock()
	codec := s.codec
	s.mu.Unlock()
	encoded, err := codec.Encode(SessionCookieName, map[string]string{"name": username})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.sessionUser(r); !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if name, ok := s.sessionUser(r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": name})
		return
	}
	var body struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == nil || body.Password == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Username and password are required"})
		return
	}
	username := strings.ToLower(strings.TrimSpace(*body.Username))
	password := strings.TrimSpace(*body.Password)

	s.mu.Lock()
	u, ok := s.users[username]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid username or password"})
		return
	}
	if err := s.startSession(w, username); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": username, "message": "Login successful"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if name, ok := s.sessionUser(r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": name})
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request data"})
		return
	}
	username := strings.ToLower(strings.TrimSpace(body.Username))
	email := strings.ToLower(strings.TrimSpace(body.Email))
	password := strings.TrimSpace(body.Password)

	switch {
	case len(username) < 3:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Username must be at least 3 characters"})
		return
	case !strings.Contains(email, "@"):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid email address"})
		return
	case len(password) < 6:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Password must be at least 6 characters"})
		return
	}

	s.mu.Lock()
	_, taken := s.users[username]
	emailTaken := false
	for _, u := range s.users {
		if u.Email == email {
			emailTaken = true
		}
	}
	s.mu.Unlock()
	if taken {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "Username already taken"})
		return
	}
	if emailTaken {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "Email already registered"})
		return
	}

	s.AddUser(username, password, email, strings.TrimSpace(body.Name))
	if err := s.startSession(w, username); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": username, "message": "Registration successful"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hook := s.checkAuthHook
	s.checkAuthCalls++
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if name, ok := s.sessionUser(r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "username": name})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
}

func (s *Server) handleGenerateRecipe(w http.ResponseWriter, r *http.Request) {
	dish, ok := dishName(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Dish name is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"recipe":  fmt.Sprintf("Recipe for %s\n\nIngredients:\n- love\n\nSteps:\n1. Cook.", dish),
	})
}

func (s *Server) handleGenerateDishImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := dishName(r); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Dish name is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "image_url": "/api/images/" + uuid.NewString() + ".png"})
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No file part"})
		return
	}
	defer file.Close()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "File type not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"analysis":  fmt.Sprintf("A photo (%d bytes) that looks like pasta.", header.Size),
		"image_url": "https://images.example.test/" + uuid.NewString() + ext,
	})
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	name, _ := s.sessionUser(r)
	s.mu.Lock()
	list := append([]recipe{}, s.recipes[name]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSaveRecipe(w http.ResponseWriter, r *http.Request) {
	name, _ := s.sessionUser(r)
	var rec recipe
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || rec.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Recipe title is required"})
		return
	}
	rec.ID = uuid.NewString()
	s.mu.Lock()
	s.recipes[name] = append(s.recipes[name], rec)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	name, _ := s.sessionUser(r)
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recipes[name] {
		if rec.ID == id {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Recipe not found"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	name, _ := s.sessionUser(r)
	s.mu.Lock()
	u := *s.users[name]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"username": u.Username, "email": u.Email, "name": u.Name})
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	name, _ := s.sessionUser(r)
	var body struct {
		Email *string `json:"email"`
		Name  *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request data"})
		return
	}
	s.mu.Lock()
	u := s.users[name]
	if body.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*body.Email))
	}
	if body.Name != nil {
		u.Name = strings.TrimSpace(*body.Name)
	}
	out := map[string]any{"username": u.Username, "email": u.Email, "name": u.Name}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func dishName(r *http.Request) (string, bool) {
	var body struct {
		DishName string `json:"dish_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", false
	}
	name := strings.TrimSpace(body.DishName)
	return name, name != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

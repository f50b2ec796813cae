// Package glpitest provides an in-memory fake of the remote ticketing REST
// API for tests.
package glpitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	AppToken  = "test-app-token"
	UserToken = "test-user-token"

	dateLayout = "2006-01-02 15:04:05"
)

// Ticket is a stored remote ticket.
type Ticket struct {
	ID        int
	Name      string
	Content   string
	Status    int
	Priority  int
	Urgency   int
	Requester int
	Date      time.Time
	DateMod   time.Time
	Deleted   bool
}

// Followup is a stored remote followup.
type Followup struct {
	ID        int
	TicketID  int
	Content   string
	IsPrivate bool
	Date      time.Time
}

// User is a stored remote user.
type User struct {
	ID        int
	Name      string
	Realname  string
	ProfileID int
}

// Link is a stored ticket actor link.
type Link struct {
	TicketID int
	UserID   int
	Type     int
}

// Server is a fake remote API backed by maps.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	nextID    int
	sessions  map[string]bool
	tickets   map[int]*Ticket
	followups map[int]*Followup
	users     map[int]*User
	links     []Link

	// Counters of remote calls, by kind.
	InitSessionCalls int
	TicketCreates    int
	UserCreates      int
	UserSearches     int
	FollowupCreates  int
	TicketListCalls  int

	// Fault injection.
	FailInitSession    bool
	rejectSessionsLeft int
	duplicateUsersLeft int
	failNext           map[string]int
	EmptyPageAtEnd     bool
	Now                func() time.Time
}

// NewServer starts a fake server. Call Close when done.
func NewServer() *Server {
	s := &Server{
		nextID:    100,
		sessions:  make(map[string]bool),
		tickets:   make(map[int]*Ticket),
		followups: make(map[int]*Followup),
		users:     make(map[int]*User),
		failNext:  make(map[string]int),
		Now:       time.Now,
	}

	r := chi.NewRouter()
	r.Post("/initSession", s.initSession)
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/killSession", s.killSession)
		r.Get("/Ticket", s.listTickets)
		r.Post("/Ticket", s.createTicket)
		r.Get("/Ticket/{id}", s.getTicket)
		r.Put("/Ticket/{id}", s.updateTicket)
		r.Delete("/Ticket/{id}", s.deleteTicket)
		r.Get("/Ticket/{id}/ITILFollowup", s.listFollowups)
		r.Post("/ITILFollowup", s.createFollowup)
		r.Get("/User", s.searchUsers)
		r.Post("/User", s.createUser)
		r.Post("/Ticket_User", s.linkUser)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// RejectSessions makes the next n authenticated calls fail with 401.
func (s *Server) RejectSessions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSessionsLeft = n
}

// DuplicateUserCreates makes the next n user creations store the user but
// answer with a duplicate error, as a concurrent creation would.
func (s *Server) DuplicateUserCreates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicateUsersLeft = n
}

// FailNext makes the next n calls matching "METHOD /path" fail with a 500.
func (s *Server) FailNext(method, path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[method+" "+path] = n
}

// AddUser stores a remote user and returns its id.
func (s *Server) AddUser(login, realname string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.users[id] = &User{ID: id, Name: login, Realname: realname}
	return id
}

// AddTicket stores a ticket as-is and returns its id.
func (s *Server) AddTicket(name, content string, status int, modified time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.tickets[id] = &Ticket{ID: id, Name: name, Content: content, Status: status, Date: modified, DateMod: modified}
	return id
}

// AddFollowup stores a followup as-is and returns its id.
func (s *Server) AddFollowup(ticketID int, content string, private bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.followups[id] = &Followup{ID: id, TicketID: ticketID, Content: content, IsPrivate: private, Date: s.Now()}
	return id
}

// Ticket returns a copy of a stored ticket.
func (s *Server) Ticket(id int) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *t, true
}

// Followups returns the stored followups of a ticket ordered by id.
func (s *Server) Followups(ticketID int) []Followup {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Followup
	for _, f := range s.followups {
		if f.TicketID == ticketID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Users returns the stored users.
func (s *Server) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links returns the stored requester links.
func (s *Server) Links() []Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Link(nil), s.links...)
}

func (s *Server) id() int {
	s.nextID++
	return s.nextID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, []string{code, msg})
}

func (s *Server) initSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InitSessionCalls++
	if s.FailInitSession {
		writeError(w, http.StatusInternalServerError, "ERROR", "database unavailable")
		return
	}
	if r.Header.Get("App-Token") != AppToken {
		writeError(w, http.StatusBadRequest, "ERROR_WRONG_APP_TOKEN_PARAMETER", "missing app token")
		return
	}
	if r.Header.Get("Authorization") != "user_token "+UserToken {
		writeError(w, http.StatusUnauthorized, "ERROR_GLPI_LOGIN_USER_TOKEN", "user_token invalid")
		return
	}
	tok := uuid.NewString()
	s.sessions[tok] = true
	writeJSON(w, http.StatusOK, map[string]string{"session_token": tok})
}

func (s *Server) killSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, r.Header.Get("Session-Token"))
	writeJSON(w, http.StatusOK, true)
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		tok := r.Header.Get("Session-Token")
		if s.rejectSessionsLeft > 0 {
			s.rejectSessionsLeft--
			delete(s.sessions, tok)
		}
		valid := s.sessions[tok]
		key := r.Method + " " + r.URL.Path
		fail := s.failNext[key] > 0
		if fail {
			s.failNext[key]--
		}
		s.mu.Unlock()

		if !valid {
			writeError(w, http.StatusUnauthorized, "ERROR_SESSION_TOKEN_INVALID", "session_token seems invalid")
			return
		}
		if fail {
			writeError(w, http.StatusInternalServerError, "ERROR", "internal error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeInput(r *http.Request) (map[string]interface{}, error) {
	var env struct {
		Input map[string]interface{} `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.Input == nil {
		return nil, fmt.Errorf("missing input")
	}
	return env.Input, nil
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func stringField(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func (s *Server) ticketJSON(t *Ticket) map[string]interface{} {
	return map[string]interface{}{
		"id":            t.ID,
		"name":          t.Name,
		"content":       t.Content,
		"status":        t.Status,
		"priority":      t.Priority,
		"urgency":       t.Urgency,
		"date":          t.Date.Format(dateLayout),
		"date_mod":      t.DateMod.Format(dateLayout),
		"date_creation": t.Date.Format(dateLayout),
		"is_deleted":    0,
	}
}

func parseRange(v string) (int, int, bool) {
	if v == "" {
		return 0, 49, true
	}
	a, b, ok := strings.Cut(v, "-")
	if !ok {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(a)
	end, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TicketListCalls++

	start, end, ok := parseRange(r.URL.Query().Get("range"))
	if !ok {
		writeError(w, http.StatusBadRequest, "ERROR_RANGE_PARAMETER", "bad range")
		return
	}

	ids := make([]int, 0, len(s.tickets))
	for id, t := range s.tickets {
		if !t.Deleted {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	if start >= len(ids) {
		if s.EmptyPageAtEnd {
			writeJSON(w, http.StatusOK, []interface{}{})
			return
		}
		writeError(w, http.StatusBadRequest, "ERROR_RANGE_EXCEED_TOTAL", "Provided range exceed total count of data")
		return
	}
	if end >= len(ids) {
		end = len(ids) - 1
	}
	out := make([]map[string]interface{}, 0, end-start+1)
	for _, id := range ids[start : end+1] {
		out = append(out, s.ticketJSON(s.tickets[id]))
	}
	w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", start, end, len(ids)))
	status := http.StatusOK
	if len(out) < len(ids) {
		status = http.StatusPartialContent
	}
	writeJSON(w, status, out)
}

func (s *Server) ticketFromPath(w http.ResponseWriter, r *http.Request) (*Ticket, bool) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	t, ok := s.tickets[id]
	if !ok || t.Deleted {
		writeError(w, http.StatusNotFound, "ERROR_ITEM_NOT_FOUND", "Item not found")
		return nil, false
	}
	return t, true
}

func (s *Server) getTicket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ticketFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ticketJSON(t))
}

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ERROR_BAD_ARRAY", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TicketCreates++
	name, _ := stringField(input, "name")
	content, _ := stringField(input, "content")
	now := s.Now()
	id := s.id()
	s.tickets[id] = &Ticket{
		ID:        id,
		Name:      name,
		Content:   content,
		Status:    1,
		Priority:  intField(input, "priority"),
		Urgency:   intField(input, "urgency"),
		Requester: intField(input, "_users_id_requester"),
		Date:      now,
		DateMod:   now,
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "message": fmt.Sprintf("Item successfully added: %s (%d)", name, id)})
}

func (s *Server) updateTicket(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ERROR_BAD_ARRAY", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ticketFromPath(w, r)
	if !ok {
		return
	}
	if v, ok := stringField(input, "name"); ok {
		t.Name = v
	}
	if v, ok := stringField(input, "content"); ok {
		t.Content = v
	}
	t.DateMod = s.Now()
	writeJSON(w, http.StatusOK, []map[string]interface{}{{strconv.Itoa(t.ID): true, "message": ""}})
}

func (s *Server) deleteTicket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ticketFromPath(w, r)
	if !ok {
		return
	}
	t.Deleted = true
	writeJSON(w, http.StatusOK, []map[string]interface{}{{strconv.Itoa(t.ID): true, "message": ""}})
}

func (s *Server) listFollowups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ticketFromPath(w, r)
	if !ok {
		return
	}
	out := []map[string]interface{}{}
	ids := make([]int, 0)
	for id, f := range s.followups {
		if f.TicketID == t.ID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		f := s.followups[id]
		private := 0
		if f.IsPrivate {
			private = 1
		}
		out = append(out, map[string]interface{}{
			"id":            f.ID,
			"itemtype":      "Ticket",
			"items_id":      f.TicketID,
			"content":       f.Content,
			"is_private":    private,
			"date":          f.Date.Format(dateLayout),
			"date_creation": f.Date.Format(dateLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createFollowup(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ERROR_BAD_ARRAY", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ticketID := intField(input, "items_id")
	t, ok := s.tickets[ticketID]
	if !ok || t.Deleted {
		writeError(w, http.StatusBadRequest, "ERROR_GLPI_ADD", "ticket does not exist")
		return
	}
	s.FollowupCreates++
	content, _ := stringField(input, "content")
	id := s.id()
	s.followups[id] = &Followup{ID: id, TicketID: ticketID, Content: content, IsPrivate: intField(input, "is_private") != 0, Date: s.Now()}
	t.DateMod = s.Now()
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "message": ""})
}

func (s *Server) searchUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserSearches++
	needle := strings.ToLower(r.URL.Query().Get("searchText[name]"))
	out := []map[string]interface{}{}
	ids := make([]int, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		u := s.users[id]
		if needle != "" && !strings.Contains(strings.ToLower(u.Name), needle) {
			continue
		}
		out = append(out, map[string]interface{}{"id": u.ID, "name": u.Name, "realname": u.Realname})
	}
	if len(out) == 0 {
		writeError(w, http.StatusBadRequest, "ERROR_RANGE_EXCEED_TOTAL", "Provided range exceed total count of data")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ERROR_BAD_ARRAY", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserCreates++
	name, _ := stringField(input, "name")
	realname, _ := stringField(input, "realname")

	for _, u := range s.users {
		if strings.EqualFold(u.Name, name) {
			writeError(w, http.StatusBadRequest, "ERROR_GLPI_ADD", "User "+name+" already exists")
			return
		}
	}

	id := s.id()
	s.users[id] = &User{ID: id, Name: name, Realname: realname, ProfileID: intField(input, "profiles_id")}
	if s.duplicateUsersLeft > 0 {
		s.duplicateUsersLeft--
		writeError(w, http.StatusBadRequest, "ERROR_GLPI_ADD", "User "+name+" already exists")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "message": ""})
}

func (s *Server) linkUser(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "ERROR_BAD_ARRAY", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := Link{TicketID: intField(input, "tickets_id"), UserID: intField(input, "users_id"), Type: intField(input, "type")}
	s.links = append(s.links, l)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": s.id(), "message": ""})
}

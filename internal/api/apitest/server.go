// Package apitest provides a scripted stand-in for the remote job service.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Op names one remote operation.
type Op string

const (
	OpSubmit   Op = "submit"
	OpProgress Op = "progress"
	OpFile     Op = "file"
	OpCleanup  Op = "cleanup"
)

// Reply is one scripted response.
type Reply struct {
	Status   int
	Body     []byte
	Filename string // sets Content-Disposition when non-empty
}

// Progress replies 200 {"progress": v}. v may be any JSON value.
func Progress(v interface{}) Reply {
	return JSON(http.StatusOK, map[string]interface{}{"progress": v})
}

// NotReady replies 404 like the service does before the file exists.
func NotReady() Reply {
	return JSON(http.StatusNotFound, map[string]string{"detail": "Task not completed yet"})
}

// File replies 200 with data as an attachment.
func File(name string, data []byte) Reply {
	return Reply{Status: http.StatusOK, Body: data, Filename: name}
}

// JSON marshals v into a reply with the given status.
func JSON(status int, v interface{}) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply{Status: status, Body: b}
}

// Call records one request the server received.
type Call struct {
	Op     Op
	TaskID string
	URL    string // submitted URL, for OpSubmit
	At     time.Time
}

// Server is an httptest server with scripted per-task replies. Once a script
// is exhausted its last reply repeats.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	submit   []Reply
	progress map[string][]Reply
	files    map[string][]Reply
	calls    []Call
}

// NewServer starts a server whose submit call returns task "abc123".
func NewServer() *Server {
	s := &Server{
		submit:   []Reply{JSON(http.StatusOK, map[string]string{"task_id": "abc123"})},
		progress: make(map[string][]Reply),
		files:    make(map[string][]Reply),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/api/download", s.handleSubmit)
	r.Get("/api/progress/{task_id}", s.handleScripted(OpProgress, func() map[string][]Reply { return s.progress }))
	r.Get("/api/file/{task_id}", s.handleScripted(OpFile, func() map[string][]Reply { return s.files }))
	r.Post("/api/cleanup/{task_id}", s.handleCleanup)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return r
}

// ScriptSubmit replaces the replies for successive submit calls.
func (s *Server) ScriptSubmit(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submit = replies
}

// SubmitTaskIDs makes successive submits return the given ids.
func (s *Server) SubmitTaskIDs(ids ...string) {
	replies := make([]Reply, 0, len(ids))
	for _, id := range ids {
		replies = append(replies, JSON(http.StatusOK, map[string]string{"task_id": id}))
	}
	s.ScriptSubmit(replies...)
}

// ScriptProgress sets the replies for successive progress polls of id.
func (s *Server) ScriptProgress(id string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[id] = replies
}

// ScriptFile sets the replies for successive artifact fetches of id.
func (s *Server) ScriptFile(id string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = replies
}

// Calls returns the recorded calls for op, optionally filtered by task id.
// An empty op matches every operation.
func (s *Server) Calls(op Op, id string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if (op == "" || c.Op == op) && (id == "" || c.TaskID == id) {
			out = append(out, c)
		}
	}
	return out
}

// Count is len(Calls(op, id)).
func (s *Server) Count(op Op, id string) int { return len(s.Calls(op, id)) }

func (s *Server) record(c Call) {
	c.At = time.Now()
	s.calls = append(s.calls, c)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &req); err != nil {
		write(w, JSON(http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()}))
		return
	}

	s.mu.Lock()
	s.record(Call{Op: OpSubmit, URL: req.URL})
	reply := next(&s.submit)
	s.mu.Unlock()
	write(w, reply)
}

func (s *Server) handleScripted(op Op, script func() map[string][]Reply) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "task_id")

		s.mu.Lock()
		s.record(Call{Op: op, TaskID: id})
		replies := script()[id]
		reply := next(&replies)
		script()[id] = replies
		s.mu.Unlock()

		if reply.Status == 0 {
			reply = JSON(http.StatusNotFound, map[string]string{"detail": "Task not found"})
		}
		write(w, reply)
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(Call{Op: OpCleanup, TaskID: chi.URLParam(r, "task_id")})
	s.mu.Unlock()
	write(w, JSON(http.StatusOK, map[string]string{"message": "File cleaned up successfully!"}))
}

// next pops the head of a script, keeping the last element in place.
func next(script *[]Reply) Reply {
	if len(*script) == 0 {
		return Reply{}
	}
	r := (*script)[0]
	if len(*script) > 1 {
		*script = (*script)[1:]
	}
	return r
}

func write(w http.ResponseWriter, r Reply) {
	if r.Status == 0 {
		r = JSON(http.StatusInternalServerError, map[string]string{"detail": "no scripted reply"})
	}
	if r.Filename != "" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": r.Filename}))
		w.Header().Set("Content-Length", fmt.Sprint(len(r.Body)))
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

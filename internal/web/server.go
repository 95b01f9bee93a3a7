// Package web serves the JSON HTTP API.
package web

import (
	"net/http"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/auth"
	"github.com/p-n-ai/pai-course/internal/catalog"
	"github.com/p-n-ai/pai-course/internal/course"
)

// TopicLister lists suggested course topics. *catalog.Catalog satisfies it.
type TopicLister interface {
	Topics() []catalog.Topic
}

// Config holds dependencies for the API server.
type Config struct {
	Auth        *auth.Service
	Engine      *course.Engine
	Assessments *assessment.Service
	Users       course.UserStore
	Topics      TopicLister // optional
}

// Server handles API requests.
type Server struct {
	auth        *auth.Service
	engine      *course.Engine
	assessments *assessment.Service
	users       course.UserStore
	topics      TopicLister
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	topics := cfg.Topics
	if topics == nil {
		topics = catalog.New()
	}
	return &Server{
		auth:        cfg.Auth,
		engine:      cfg.Engine,
		assessments: cfg.Assessments,
		users:       cfg.Users,
		topics:      topics,
	}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/topics", s.handleTopics)

	mux.HandleFunc("GET /api/me", s.requireUser(s.handleMe))
	mux.HandleFunc("GET /api/me/report.xlsx", s.requireUser(s.handleReport))

	mux.HandleFunc("POST /api/assessments", s.requireUser(s.handleStartAssessment))
	mux.HandleFunc("POST /api/assessments/{id}/submit", s.requireUser(s.handleSubmitAssessment))
	mux.HandleFunc("GET /api/assessments", s.requireUser(s.handleAssessments))

	mux.HandleFunc("GET /api/courses", s.requireUser(s.handleCourses))
	mux.HandleFunc("GET /api/courses/{id}", s.requireUser(s.handleCourse))
	mux.HandleFunc("GET /api/courses/{id}/modules/{module}/topics/{topic}/lesson", s.requireUser(s.handleLesson))
	mux.HandleFunc("POST /api/courses/{id}/modules/{module}/verify", s.requireUser(s.handleVerify))
	mux.HandleFunc("POST /api/courses/{id}/modules/{module}/topics/{topic}/complete", s.requireUser(s.handleComplete))
}

// Handler returns the API routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return LogRequests(mux)
}

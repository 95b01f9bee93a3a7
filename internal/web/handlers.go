package web

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/report"
)

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, u)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, u course.User) {
	token, expires, err := s.auth.IssueToken(u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, sessionView{User: u, Token: token, ExpiresAt: expires})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.topics.Topics()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.GetUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)

	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	courses, err := s.engine.Courses(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	assessments, err := s.assessments.History(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteProgress(&buf, u, courses, assessments); err != nil {
		writeError(w, r, fmt.Errorf("build report: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStartAssessment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.assessments.Start(r.Context(), UserID(r.Context()), req.Topic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newQuizView(p))
}

func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers answerList `json:"answers"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.assessments.Submit(r.Context(), UserID(r.Context()), r.PathValue("id"), req.Answers.indexes())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcomeView{Assessment: out.Assessment, Course: newCourseView(out.Course)})
}

func (s *Server) handleAssessments(w http.ResponseWriter, r *http.Request) {
	history, err := s.assessments.History(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": history})
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.engine.Courses(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]courseView, len(courses))
	for i, c := range courses {
		views[i] = newCourseView(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": views})
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, courseID := UserID(ctx), r.PathValue("id")

	c, err := s.engine.Course(ctx, userID, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	completions, err := s.engine.Completions(ctx, userID, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view := newCourseView(c)
	for _, lc := range completions {
		view.CompletedLessons = append(view.CompletedLessons, lessonRef{ModuleIndex: lc.ModuleIndex, TopicIndex: lc.TopicIndex})
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	moduleIndex, err := pathIndex(r, "module")
	if err != nil {
		writeError(w, r, err)
		return
	}
	topicIndex, err := pathIndex(r, "topic")
	if err != nil {
		writeError(w, r, err)
		return
	}

	lesson, err := s.engine.Lesson(r.Context(), UserID(r.Context()), r.PathValue("id"), moduleIndex, topicIndex)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(lesson)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	moduleIndex, err := pathIndex(r, "module")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Answers answerList `json:"answers"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.engine.VerifyModule(r.Context(), UserID(r.Context()), r.PathValue("id"), moduleIndex, req.Answers.indexes())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	moduleIndex, err := pathIndex(r, "module")
	if err != nil {
		writeError(w, r, err)
		return
	}
	topicIndex, err := pathIndex(r, "topic")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		XP int `json:"xp"`
	}
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.engine.CompleteLesson(r.Context(), UserID(r.Context()), r.PathValue("id"), moduleIndex, topicIndex, req.XP)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

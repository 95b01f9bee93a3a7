package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout = 5 * time.Second

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore is a PostgreSQL-backed Store. Modules are stored as JSONB on
// the course row; every counter update is a single conditional statement or
// runs inside a row-locking transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const userColumns = `id::text, email, name, password_hash, total_xp, streak_days, last_lesson_date, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.TotalXP,
		&u.StreakDays,
		&u.LastLessonDate,
		&u.CreatedAt,
	)
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	created, err := scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING `+userColumns,
		u.Email,
		u.Name,
		u.PasswordHash,
	))
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return User{}, fmt.Errorf("user %s: %w", u.Email, ErrConflict)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	if !validID(id) {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1::uuid`,
		id,
	))
	if err != nil {
		return User{}, notFoundOr(err, "user "+id)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		return User{}, notFoundOr(err, "user "+email)
	}
	return u, nil
}

const courseColumns = `id::text, user_id::text, topic, level, modules, completed_modules, progress, created_at`

func scanCourse(row pgx.Row) (Course, error) {
	var c Course
	var level string
	var modules []byte
	if err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Topic,
		&level,
		&modules,
		&c.CompletedModules,
		&c.Progress,
		&c.CreatedAt,
	); err != nil {
		return Course{}, err
	}
	c.Level = Level(level)
	if err := json.Unmarshal(modules, &c.Modules); err != nil {
		return Course{}, fmt.Errorf("decode modules of course %s: %w", c.ID, err)
	}
	return c, nil
}

func (s *PostgresStore) CreateCourse(ctx context.Context, c Course) (Course, error) {
	if !validID(c.UserID) {
		return Course{}, fmt.Errorf("course owner %s: %w", c.UserID, ErrNotFound)
	}
	if c.Modules == nil {
		c.Modules = []Module{}
	}
	modules, err := json.Marshal(c.Modules)
	if err != nil {
		return Course{}, fmt.Errorf("marshal modules: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	created, err := scanCourse(s.pool.QueryRow(ctx,
		`INSERT INTO courses (user_id, topic, level, modules, completed_modules, progress)
		 VALUES ($1::uuid, $2, $3, $4::jsonb, $5, $6)
		 RETURNING `+courseColumns,
		c.UserID,
		c.Topic,
		string(c.Level),
		string(modules),
		c.CompletedModules,
		Progress(c.CompletedModules, len(c.Modules)),
	))
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return Course{}, fmt.Errorf("course owner %s: %w", c.UserID, ErrNotFound)
		}
		return Course{}, fmt.Errorf("create course: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, userID, courseID string) (Course, error) {
	if !validID(userID) || !validID(courseID) {
		return Course{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanCourse(s.pool.QueryRow(ctx,
		`SELECT `+courseColumns+`
		 FROM courses
		 WHERE id = $1::uuid AND user_id = $2::uuid`,
		courseID,
		userID,
	))
	if err != nil {
		return Course{}, notFoundOr(err, "course "+courseID)
	}
	return c, nil
}

func (s *PostgresStore) ListCourses(ctx context.Context, userID string) ([]Course, error) {
	if !validID(userID) {
		return []Course{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+courseColumns+`
		 FROM courses
		 WHERE user_id = $1::uuid
		 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	courses := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return courses, nil
}

func (s *PostgresStore) AdvanceModule(ctx context.Context, userID, courseID string, from int) (Course, bool, error) {
	if !validID(userID) || !validID(courseID) {
		return Course{}, false, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanCourse(s.pool.QueryRow(ctx,
		`UPDATE courses
		 SET completed_modules = LEAST($3::int + 1, jsonb_array_length(modules)),
		     progress = CASE
		         WHEN jsonb_array_length(modules) = 0 THEN 0
		         ELSE ROUND(LEAST($3::int + 1, jsonb_array_length(modules)) * 100.0 / jsonb_array_length(modules))::int
		     END
		 WHERE id = $1::uuid AND user_id = $2::uuid AND completed_modules = $3::int
		 RETURNING `+courseColumns,
		courseID,
		userID,
		from,
	))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Course{}, false, fmt.Errorf("advance module: %w", err)
	}

	// Either the course is gone or another request moved the cursor first.
	current, err := s.GetCourse(ctx, userID, courseID)
	if err != nil {
		return Course{}, false, err
	}
	return current, false, nil
}

func (s *PostgresStore) CreateAssessment(ctx context.Context, a Assessment) (Assessment, error) {
	if !validID(a.UserID) {
		return Assessment{}, fmt.Errorf("assessment owner %s: %w", a.UserID, ErrNotFound)
	}
	if a.WeakTopics == nil {
		a.WeakTopics = []string{}
	}
	if a.Analysis == nil {
		a.Analysis = []QuestionAnalysis{}
	}
	weak, err := json.Marshal(a.WeakTopics)
	if err != nil {
		return Assessment{}, fmt.Errorf("marshal weak topics: %w", err)
	}
	analysis, err := json.Marshal(a.Analysis)
	if err != nil {
		return Assessment{}, fmt.Errorf("marshal analysis: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err = s.pool.QueryRow(ctx,
		`INSERT INTO assessments (user_id, topic, score, feedback, weak_topics, analysis)
		 VALUES ($1::uuid, $2, $3, $4, $5::jsonb, $6::jsonb)
		 RETURNING id::text, created_at`,
		a.UserID,
		a.Topic,
		a.Score,
		a.Feedback,
		string(weak),
		string(analysis),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return Assessment{}, fmt.Errorf("assessment owner %s: %w", a.UserID, ErrNotFound)
		}
		return Assessment{}, fmt.Errorf("create assessment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAssessments(ctx context.Context, userID string) ([]Assessment, error) {
	if !validID(userID) {
		return []Assessment{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id::text, topic, score, feedback, weak_topics, analysis, created_at
		 FROM assessments
		 WHERE user_id = $1::uuid
		 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	out := []Assessment{}
	for rows.Next() {
		var a Assessment
		var weak, analysis []byte
		if err := rows.Scan(&a.ID, &a.UserID, &a.Topic, &a.Score, &a.Feedback, &weak, &analysis, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if err := json.Unmarshal(weak, &a.WeakTopics); err != nil {
			return nil, fmt.Errorf("decode weak topics: %w", err)
		}
		if err := json.Unmarshal(analysis, &a.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}

const completionColumns = `id::text, user_id::text, course_id::text, module_index, topic_index, xp_earned, completed_at`

func scanCompletion(row pgx.Row) (LessonCompletion, error) {
	var lc LessonCompletion
	err := row.Scan(&lc.ID, &lc.UserID, &lc.CourseID, &lc.ModuleIndex, &lc.TopicIndex, &lc.XPEarned, &lc.CompletedAt)
	return lc, err
}

func (s *PostgresStore) GetLessonCompletion(ctx context.Context, userID, courseID string, moduleIndex, topicIndex int) (LessonCompletion, error) {
	if !validID(userID) || !validID(courseID) {
		return LessonCompletion{}, fmt.Errorf("lesson completion: %w", ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	lc, err := scanCompletion(s.pool.QueryRow(ctx,
		`SELECT `+completionColumns+`
		 FROM lesson_completions
		 WHERE user_id = $1::uuid AND course_id = $2::uuid AND module_index = $3 AND topic_index = $4`,
		userID,
		courseID,
		moduleIndex,
		topicIndex,
	))
	if err != nil {
		return LessonCompletion{}, notFoundOr(err, "lesson completion")
	}
	return lc, nil
}

func (s *PostgresStore) ListLessonCompletions(ctx context.Context, userID, courseID string) ([]LessonCompletion, error) {
	if !validID(userID) || !validID(courseID) {
		return []LessonCompletion{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+completionColumns+`
		 FROM lesson_completions
		 WHERE user_id = $1::uuid AND course_id = $2::uuid
		 ORDER BY module_index, topic_index`,
		userID,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query lesson completions: %w", err)
	}
	defer rows.Close()

	out := []LessonCompletion{}
	for rows.Next() {
		lc, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson completion: %w", err)
		}
		out = append(out, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lesson completions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CompleteLesson(ctx context.Context, c LessonCompletion) (LessonCompletion, Stats, bool, error) {
	if !validID(c.UserID) || !validID(c.CourseID) {
		return LessonCompletion{}, Stats{}, false, fmt.Errorf("course %s: %w", c.CourseID, ErrNotFound)
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return LessonCompletion{}, Stats{}, false, fmt.Errorf("begin lesson transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the user row so concurrent completions apply XP one at a time.
	var stats Stats
	err = tx.QueryRow(ctx,
		`SELECT u.total_xp, u.streak_days, u.last_lesson_date
		 FROM users u
		 JOIN courses c ON c.user_id = u.id
		 WHERE u.id = $1::uuid AND c.id = $2::uuid
		 FOR UPDATE OF u`,
		c.UserID,
		c.CourseID,
	).Scan(&stats.TotalXP, &stats.StreakDays, &stats.LastLessonDate)
	if err != nil {
		return LessonCompletion{}, Stats{}, false, notFoundOr(err, "course "+c.CourseID)
	}

	inserted, err := scanCompletion(tx.QueryRow(ctx,
		`INSERT INTO lesson_completions (user_id, course_id, module_index, topic_index, xp_earned, completed_at)
		 VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT lesson_completions_unique DO NOTHING
		 RETURNING `+completionColumns,
		c.UserID,
		c.CourseID,
		c.ModuleIndex,
		c.TopicIndex,
		c.XPEarned,
		c.CompletedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanCompletion(tx.QueryRow(ctx,
			`SELECT `+completionColumns+`
			 FROM lesson_completions
			 WHERE user_id = $1::uuid AND course_id = $2::uuid AND module_index = $3 AND topic_index = $4`,
			c.UserID,
			c.CourseID,
			c.ModuleIndex,
			c.TopicIndex,
		))
		if err != nil {
			return LessonCompletion{}, Stats{}, false, fmt.Errorf("load existing completion: %w", err)
		}
		return existing, stats, false, nil
	}
	if err != nil {
		return LessonCompletion{}, Stats{}, false, fmt.Errorf("insert lesson completion: %w", err)
	}

	next := ApplyLessonXP(stats, inserted.XPEarned, inserted.CompletedAt)
	if _, err := tx.Exec(ctx,
		`UPDATE users
		 SET total_xp = $2, streak_days = $3, last_lesson_date = $4
		 WHERE id = $1::uuid`,
		c.UserID,
		next.TotalXP,
		next.StreakDays,
		next.LastLessonDate,
	); err != nil {
		return LessonCompletion{}, Stats{}, false, fmt.Errorf("update user stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return LessonCompletion{}, Stats{}, false, fmt.Errorf("commit lesson transaction: %w", err)
	}
	return inserted, next, true, nil
}

// validID reports whether id can be cast to uuid; anything else cannot match
// a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

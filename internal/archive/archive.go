// Package archive keeps an SQLite index of ingested dialog logs so many
// sessions can be listed, inspected and aggregated without rescanning the
// log files.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pavelanni/dialoglog/internal/dialog"
	"github.com/pavelanni/dialoglog/internal/model"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		student_name TEXT NOT NULL DEFAULT '',
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		status TEXT NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0,
		topic TEXT NOT NULL,
		subject TEXT NOT NULL,
		difficulty TEXT NOT NULL DEFAULT '',
		topic_type TEXT NOT NULL DEFAULT '',
		max_questions INTEGER NOT NULL,
		total_questions INTEGER NOT NULL DEFAULT 0,
		total_answers INTEGER NOT NULL DEFAULT 0,
		total_score REAL NOT NULL DEFAULT 0,
		max_possible_score REAL NOT NULL DEFAULT 0,
		average_score REAL,
		percentage REAL NOT NULL DEFAULT 0,
		grade_band TEXT NOT NULL DEFAULT '',
		source_file TEXT NOT NULL DEFAULT '',
		ingested_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS qa_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question_number INTEGER NOT NULL,
		question TEXT NOT NULL,
		topic_level TEXT NOT NULL DEFAULT '',
		question_type TEXT NOT NULL DEFAULT '',
		answered INTEGER NOT NULL DEFAULT 0,
		total_score REAL,
		strengths TEXT NOT NULL DEFAULT '',
		weaknesses TEXT NOT NULL DEFAULT '',
		UNIQUE (session_id, question_number),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SessionRow is one archived session, denormalized for listing.
type SessionRow struct {
	SessionID        string              `json:"session_id"`
	StudentName      string              `json:"student_name"`
	StartTime        time.Time           `json:"start_time"`
	EndTime          *time.Time          `json:"end_time,omitempty"`
	Status           model.SessionStatus `json:"status"`
	DurationSeconds  float64             `json:"duration_seconds"`
	Topic            string              `json:"topic"`
	Subject          string              `json:"subject"`
	Difficulty       string              `json:"difficulty,omitempty"`
	MaxQuestions     int                 `json:"max_questions"`
	TotalQuestions   int                 `json:"total_questions"`
	TotalAnswers     int                 `json:"total_answers"`
	TotalScore       float64             `json:"total_score"`
	MaxPossibleScore float64             `json:"max_possible_score"`
	AverageScore     *float64            `json:"average_score,omitempty"`
	Percentage       float64             `json:"percentage"`
	GradeBand        string              `json:"grade_band,omitempty"`
	SourceFile       string              `json:"source_file,omitempty"`
}

// QARow is one archived question entry.
type QARow struct {
	QuestionNumber int      `json:"question_number"`
	Question       string   `json:"question"`
	TopicLevel     string   `json:"topic_level,omitempty"`
	QuestionType   string   `json:"question_type,omitempty"`
	Answered       bool     `json:"answered"`
	TotalScore     *float64 `json:"total_score,omitempty"`
	Strengths      string   `json:"strengths,omitempty"`
	Weaknesses     string   `json:"weaknesses,omitempty"`
}

// IngestRecord indexes one dialog log record. Re-ingesting a session
// replaces its previous rows, so a sealed log supersedes its checkpoint.
func (s *Store) IngestRecord(rec *model.DialogLog, sourceFile string) error {
	si := rec.SessionInfo
	ti := rec.ExamConfig.TopicInfo
	st := rec.Statistics

	percentage := st.Percentage()
	gradeBand := ""
	if si.Status == model.StatusCompleted {
		if st.MaxPossibleScore > 0 {
			gradeBand = dialog.GradeBand(percentage)
		} else {
			gradeBand = dialog.BandUndetermined
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (session_id, student_name, start_time, end_time, status, duration_seconds,
			topic, subject, difficulty, topic_type, max_questions,
			total_questions, total_answers, total_score, max_possible_score, average_score,
			percentage, grade_band, source_file, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			student_name = excluded.student_name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			status = excluded.status,
			duration_seconds = excluded.duration_seconds,
			topic = excluded.topic,
			subject = excluded.subject,
			difficulty = excluded.difficulty,
			topic_type = excluded.topic_type,
			max_questions = excluded.max_questions,
			total_questions = excluded.total_questions,
			total_answers = excluded.total_answers,
			total_score = excluded.total_score,
			max_possible_score = excluded.max_possible_score,
			average_score = excluded.average_score,
			percentage = excluded.percentage,
			grade_band = excluded.grade_band,
			source_file = excluded.source_file,
			ingested_at = excluded.ingested_at`,
		si.SessionID, si.StudentName, si.StartTime, si.EndTime, si.Status, si.DurationSeconds,
		ti.Name, ti.Subject, ti.Difficulty, ti.Type, rec.ExamConfig.MaxQuestions,
		st.TotalQuestions, st.TotalAnswers, st.TotalScore, st.MaxPossibleScore, st.AverageScore,
		percentage, gradeBand, sourceFile, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", si.SessionID, err)
	}

	if _, err := tx.Exec(`DELETE FROM qa_entries WHERE session_id = ?`, si.SessionID); err != nil {
		return fmt.Errorf("clear entries for %s: %w", si.SessionID, err)
	}
	for _, qa := range rec.QuestionsAndAnswers {
		var score *float64
		var strengths, weaknesses string
		if qa.Evaluation != nil {
			sc := qa.Evaluation.TotalScore
			score = &sc
			strengths = qa.Evaluation.Strengths
			weaknesses = qa.Evaluation.Weaknesses
		}
		_, err := tx.Exec(
			`INSERT INTO qa_entries (session_id, question_number, question, topic_level, question_type,
				answered, total_score, strengths, weaknesses)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			si.SessionID, qa.Question.QuestionNumber, qa.Question.Text, qa.Question.TopicLevel, qa.Question.QuestionType,
			qa.Answer != nil, score, strengths, weaknesses,
		)
		if err != nil {
			return fmt.Errorf("insert entry %d for %s: %w", qa.Question.QuestionNumber, si.SessionID, err)
		}
	}

	return tx.Commit()
}

const sessionColumns = `session_id, student_name, start_time, end_time, status, duration_seconds,
	topic, subject, difficulty, max_questions,
	total_questions, total_answers, total_score, max_possible_score, average_score,
	percentage, grade_band, source_file`

func scanSession(scan func(dest ...any) error) (SessionRow, error) {
	var row SessionRow
	err := scan(&row.SessionID, &row.StudentName, &row.StartTime, &row.EndTime, &row.Status, &row.DurationSeconds,
		&row.Topic, &row.Subject, &row.Difficulty, &row.MaxQuestions,
		&row.TotalQuestions, &row.TotalAnswers, &row.TotalScore, &row.MaxPossibleScore, &row.AverageScore,
		&row.Percentage, &row.GradeBand, &row.SourceFile)
	return row, err
}

// GetSession returns one archived session, or nil when it is not indexed.
func (s *Store) GetSession(sessionID string) (*SessionRow, error) {
	row, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID,
	).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListSessions returns all archived sessions, newest first.
func (s *Store) ListSessions() ([]SessionRow, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY start_time DESC, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []SessionRow
	for rows.Next() {
		row, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, row)
	}
	return sessions, rows.Err()
}

// QAsForSession returns the archived question entries of a session in
// question order.
func (s *Store) QAsForSession(sessionID string) ([]QARow, error) {
	rows, err := s.db.Query(
		`SELECT question_number, question, topic_level, question_type, answered, total_score, strengths, weaknesses
		 FROM qa_entries WHERE session_id = ? ORDER BY question_number`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []QARow
	for rows.Next() {
		var qa QARow
		if err := rows.Scan(&qa.QuestionNumber, &qa.Question, &qa.TopicLevel, &qa.QuestionType,
			&qa.Answered, &qa.TotalScore, &qa.Strengths, &qa.Weaknesses); err != nil {
			return nil, err
		}
		entries = append(entries, qa)
	}
	return entries, rows.Err()
}

// SessionCount returns the number of archived sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

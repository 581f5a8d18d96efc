package storage

// sqlite.go: journal append-only de sesiones.
//
//   - `sessions`: una fila por sesión terminada (FIRED, EXPIRED o FAILED).
//   - El core nunca lee de aquí; Recent existe para el CLI (-history).
//   - Prune al arrancar: sesiones de más de 30 días.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT PRIMARY KEY,
    condition_id  TEXT     NOT NULL,
    question      TEXT,
    shape         TEXT,
    end_time      DATETIME NOT NULL,
    state         TEXT     NOT NULL,
    side_label    TEXT,
    token_id      TEXT,
    price         REAL     NOT NULL DEFAULT 0,
    size          REAL     NOT NULL DEFAULT 0,
    notional      REAL     NOT NULL DEFAULT 0,
    dry_run       INTEGER  NOT NULL DEFAULT 0,
    order_id      TEXT,
    order_status  TEXT,
    order_error   TEXT,
    fail_reason   TEXT,
    ask_a         REAL,
    ask_b         REAL,
    started_at    DATETIME NOT NULL,
    ended_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_cond  ON sessions(condition_id);
`

const retentionSessions = 30 * 24 * time.Hour

// SQLiteJournal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}

	j := &SQLiteJournal{db: db}
	j.pruneOld(context.Background())
	return j, nil
}

// SaveSession inserta el resumen de una sesión. Una sesión repetida se ignora.
func (j *SQLiteJournal) SaveSession(ctx context.Context, o domain.SessionOutcome) error {
	var (
		label, token, orderID, status, orderErr string
		price, size, notional                   float64
		dryRun                                  bool
	)
	if o.Decision != nil {
		label, token, price = o.Decision.Label, o.Decision.Token, o.Decision.Price
	}
	if r := o.Result; r != nil {
		size, notional, dryRun = r.Size, r.Notional, r.DryRun
		orderID, status = r.Placed.CLOBOrderID, r.Placed.Status
		if r.Err != nil {
			orderErr = r.Err.Error()
		}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (
			session_id, condition_id, question, shape, end_time, state,
			side_label, token_id, price, size, notional, dry_run,
			order_id, order_status, order_error, fail_reason,
			ask_a, ask_b, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SessionID, o.Candidate.ConditionID, o.Candidate.Question, o.Candidate.Shape.String(),
		formatTime(o.Candidate.EndTime), o.State.String(),
		label, token, price, size, notional, boolToInt(dryRun),
		orderID, status, orderErr, o.FailReason,
		quoteOrNull(o.LastBook.SideA.Ask), quoteOrNull(o.LastBook.SideB.Ask),
		formatTime(o.StartedAt), formatTime(o.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSession: %w", err)
	}
	return nil
}

// Recent devuelve las últimas limit sesiones, la más reciente primero.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]domain.SessionOutcome, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, condition_id, COALESCE(question, ''), end_time, state,
		       COALESCE(side_label, ''), COALESCE(token_id, ''), price, size, notional, dry_run,
		       COALESCE(order_id, ''), COALESCE(order_status, ''), COALESCE(order_error, ''),
		       COALESCE(fail_reason, ''), ask_a, ask_b, started_at, ended_at
		FROM sessions
		ORDER BY ended_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Recent: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionOutcome
	for rows.Next() {
		var (
			o                         domain.SessionOutcome
			endTime, started, ended   string
			state, label, token       string
			orderID, status, orderErr string
			price, size, notional     float64
			dryRun                    int
			askA, askB                sql.NullFloat64
		)
		if err := rows.Scan(
			&o.SessionID, &o.Candidate.ConditionID, &o.Candidate.Question, &endTime, &state,
			&label, &token, &price, &size, &notional, &dryRun,
			&orderID, &status, &orderErr,
			&o.FailReason, &askA, &askB, &started, &ended,
		); err != nil {
			return nil, fmt.Errorf("storage.Recent: scan: %w", err)
		}

		o.Candidate.EndTime = parseTime(endTime)
		o.StartedAt = parseTime(started)
		o.EndedAt = parseTime(ended)
		o.State = parseState(state)
		o.LastBook.SideA.Ask = quoteFrom(askA)
		o.LastBook.SideB.Ask = quoteFrom(askB)
		if label != "" {
			d := domain.TradeDecision{Token: token, Label: label, Price: price}
			o.Decision = &d
			res := domain.OrderResult{
				SessionID: o.SessionID,
				Decision:  d,
				Size:      size,
				Notional:  notional,
				DryRun:    dryRun == 1,
				Placed:    domain.PlacedOrder{CLOBOrderID: orderID, Status: status},
			}
			if orderErr != "" {
				res.Err = errors.New(orderErr)
			}
			o.Result = &res
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close cierra la conexión.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionSessions))
	j.db.ExecContext(ctx, `DELETE FROM sessions WHERE ended_at < ?`, cutoff)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

func parseState(s string) domain.SessionState {
	for st := domain.StateWaiting; st <= domain.StateFailed; st++ {
		if st.String() == s {
			return st
		}
	}
	return domain.StateFailed
}

func quoteOrNull(q domain.Quote) sql.NullFloat64 {
	return sql.NullFloat64{Float64: q.Price, Valid: q.OK}
}

func quoteFrom(n sql.NullFloat64) domain.Quote {
	if !n.Valid {
		return domain.Absent
	}
	return domain.PriceOf(n.Float64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package outbox

import (
	"context"
	"database/sql"

	errors "RProject/tools/errs"

	pkgerr "github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	message_uuid     TEXT PRIMARY KEY,
	conversation_id  TEXT NOT NULL,
	recipient_id     TEXT NOT NULL DEFAULT '',
	payload          BLOB NOT NULL,
	local_seq        INTEGER NOT NULL,
	state            TEXT NOT NULL,
	retry_count      INTEGER NOT NULL DEFAULT 0,
	next_eligible_ms INTEGER NOT NULL,
	create_time_ms   INTEGER NOT NULL,
	last_error       TEXT NOT NULL DEFAULT '',
	lease_token      TEXT NOT NULL DEFAULT '',
	lease_expire_ms  INTEGER NOT NULL DEFAULT 0,
	UNIQUE(conversation_id, local_seq)
);`

// SQLStore is the durable outbox over a local SQLite database. One whole-row
// write per state change keeps readers from ever seeing a torn record.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens (and migrates) the outbox database at path; ":memory:" works
// for tests.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerr.Wrap(err, "open outbox db")
	}
	// the scheduler and pull loop share this handle from different goroutines
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(outboxSchema); err != nil {
		_ = db.Close()
		return nil, pkgerr.Wrap(err, "migrate outbox schema")
	}
	return &SQLStore{db: db}, nil
}

// DB exposes the handle so the sync cursor table can live in the same file.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Insert(ctx context.Context, m *Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox (message_uuid, conversation_id, recipient_id, payload,
			local_seq, state, retry_count, next_eligible_ms, create_time_ms, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageUUID, m.ConversationID, m.RecipientID, m.Payload,
		m.LocalSeq, m.State, m.RetryCount, m.NextEligibleMS, m.CreateTimeMS, m.LastError)
	if err != nil {
		var n int
		row := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM outbox WHERE message_uuid = ?`, m.MessageUUID)
		if scanErr := row.Scan(&n); scanErr == nil && n > 0 {
			return errors.ErrRecordExists.WrapMsg("duplicate enqueue", "message_uuid", m.MessageUUID)
		}
		return pkgerr.Wrap(err, "insert outbox record")
	}
	return nil
}

const outboxColumns = `message_uuid, conversation_id, recipient_id, payload,
	local_seq, state, retry_count, next_eligible_ms, create_time_ms, last_error,
	lease_token, lease_expire_ms`

func scanMessage(sc interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	err := sc.Scan(&m.MessageUUID, &m.ConversationID, &m.RecipientID, &m.Payload,
		&m.LocalSeq, &m.State, &m.RetryCount, &m.NextEligibleMS, &m.CreateTimeMS,
		&m.LastError, &m.LeaseToken, &m.LeaseExpireMS)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) Get(ctx context.Context, messageUUID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox WHERE message_uuid = ?`, messageUUID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerr.Wrap(err, "get outbox record")
	}
	return m, nil
}

func (s *SQLStore) Eligible(ctx context.Context, nowMS int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM outbox
		WHERE next_eligible_ms <= ?
		  AND (state IN (?, ?) OR (state = ? AND lease_expire_ms <= ?))
		ORDER BY local_seq ASC`,
		nowMS, StateQueued, StateFailedRetry, StateSending, nowMS)
	if err != nil {
		return nil, pkgerr.Wrap(err, "query eligible")
	}
	defer func() { _ = rows.Close() }()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) AcquireLease(ctx context.Context, messageUUID, token string, nowMS, expireMS int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET state = ?, lease_token = ?, lease_expire_ms = ?
		WHERE message_uuid = ?
		  AND (state IN (?, ?) OR (state = ? AND lease_expire_ms <= ?))`,
		StateSending, token, expireMS,
		messageUUID, StateQueued, StateFailedRetry, StateSending, nowMS)
	if err != nil {
		return false, pkgerr.Wrap(err, "acquire lease")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) Remove(ctx context.Context, messageUUID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE message_uuid = ? AND lease_token = ?`,
		messageUUID, token)
	return pkgerr.Wrap(err, "remove outbox record")
}

func (s *SQLStore) MarkFailed(ctx context.Context, messageUUID, token string, retryCount int, nextEligibleMS int64, lastError string, terminal bool) error {
	state := StateFailedRetry
	if terminal {
		state = StateFailedTerminal
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET state = ?, retry_count = ?, next_eligible_ms = ?,
			last_error = ?, lease_token = '', lease_expire_ms = 0
		WHERE message_uuid = ? AND lease_token = ?`,
		state, retryCount, nextEligibleMS, lastError, messageUUID, token)
	return pkgerr.Wrap(err, "mark failed")
}

func (s *SQLStore) SoonestEligible(ctx context.Context) (int64, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT MIN(next_eligible_ms) FROM outbox WHERE state != ?`,
		StateFailedTerminal)
	var soonest sql.NullInt64
	if err := row.Scan(&soonest); err != nil {
		return 0, false, pkgerr.Wrap(err, "soonest eligible")
	}
	if !soonest.Valid {
		return 0, false, nil
	}
	return soonest.Int64, true, nil
}

func (s *SQLStore) List(ctx context.Context) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox ORDER BY conversation_id, local_seq`)
	if err != nil {
		return nil, pkgerr.Wrap(err, "list outbox")
	}
	defer func() { _ = rows.Close() }()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

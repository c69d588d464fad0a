package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

const (
	accountColumns = "id, username, email, is_online, last_seen, created_at, updated_at"
	messageColumns = "id, sender_id, receiver_id, content, created_at, is_read, is_deleted, deleted_by_sender, deleted_by_receiver"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, extra ...any) (User, error) {
	var u User
	dest := append([]any{
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.IsOnline,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	}, extra...)
	err := row.Scan(dest...)
	return u, err
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.SenderId,
		&m.ReceiverId,
		&m.Content,
		&m.CreatedAt,
		&m.IsRead,
		&m.IsDeleted,
		&m.DeletedBySender,
		&m.DeletedByReceiver,
	)
	return m, err
}

func (db *PgRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING "+accountColumns,
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		now,
		now,
	)

	u, err := scanUser(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return User{}, fmt.Errorf("create account %q: %w", params.EmailAddress, ErrDuplicateEmail)
		}
		return User{}, fmt.Errorf("create account: %w", err)
	}
	return u, nil
}

func (db *PgRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+", password_hash FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var hash string
	u, err := scanUser(row, &hash)
	if err != nil {
		return User{}, fmt.Errorf("get account by email: %w", err)
	}
	u.PasswordHash = hash
	return u, nil
}

func (db *PgRepository) GetUser(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (db *PgRepository) UpdateUser(ctx context.Context, id int, update UserUpdate) error {
	sets := []string{"updated_at = $2"}
	args := []any{id, time.Now().UTC()}
	if update.IsOnline != nil {
		args = append(args, *update.IsOnline)
		sets = append(sets, "is_online = $"+strconv.Itoa(len(args)))
	}
	if update.LastSeen != nil {
		args = append(args, update.LastSeen.UTC())
		sets = append(sets, "last_seen = $"+strconv.Itoa(len(args)))
	}

	_, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = $1",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	return nil
}

func (db *PgRepository) ResetPresence(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE accounts SET is_online = FALSE, last_seen = COALESCE(last_seen, $1) WHERE is_online",
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

func (db *PgRepository) ListContacts(ctx context.Context, viewerId int) ([]Contact, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT a.id, a.username, a.email, a.is_online, a.last_seen, a.created_at, a.updated_at, "+
			"COUNT(m.id) FROM accounts a "+
			"LEFT JOIN messages m ON m.sender_id = a.id AND m.receiver_id = $1 AND NOT m.is_read "+
			"WHERE a.id <> $1 GROUP BY a.id ORDER BY a.username",
		viewerId,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]Contact, 0)
	for rows.Next() {
		var unread int
		u, err := scanUser(rows, &unread)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, Contact{User: u, UnreadCount: unread})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return contacts, nil
}

func (db *PgRepository) CreateMessage(ctx context.Context, senderId, receiverId int, content string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (sender_id, receiver_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING "+messageColumns,
		senderId,
		receiverId,
		content,
		time.Now().UTC().Round(time.Microsecond),
	)

	m, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (db *PgRepository) GetMessage(ctx context.Context, id int) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	m, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return m, nil
}

func (db *PgRepository) UpdateMessage(ctx context.Context, id int, update MessageUpdate) error {
	_, err := db.UpdateMessages(ctx, MessageFilter{Ids: []int{id}}, update)
	return err
}

func (db *PgRepository) UpdateMessages(ctx context.Context, filter MessageFilter, update MessageUpdate) (int64, error) {
	if update.empty() || (filter.Ids != nil && len(filter.Ids) == 0) {
		return 0, nil
	}

	var sets []string
	if update.MarkRead {
		sets = append(sets, "is_read = TRUE")
	}
	if update.DeleteForEveryone {
		sets = append(sets, "is_deleted = TRUE")
	}
	if update.DeleteBySender {
		sets = append(sets, "deleted_by_sender = TRUE")
	}
	if update.DeleteByReceiver {
		sets = append(sets, "deleted_by_receiver = TRUE")
	}

	where, args := messageWhere(filter)
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET "+strings.Join(sets, ", ")+where,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("update messages: %w", err)
	}
	return res.RowsAffected()
}

func (db *PgRepository) QueryMessages(ctx context.Context, filter MessageFilter) ([]Message, error) {
	if filter.Ids != nil && len(filter.Ids) == 0 {
		return []Message{}, nil
	}

	where, args := messageWhere(filter)
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages"+where+" ORDER BY created_at ASC, id ASC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return messages, nil
}

func (db *PgRepository) CountMessages(ctx context.Context, filter MessageFilter) (int, error) {
	if filter.Ids != nil && len(filter.Ids) == 0 {
		return 0, nil
	}

	where, args := messageWhere(filter)
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// messageWhere renders filter as a WHERE clause with positional arguments.
func messageWhere(f MessageFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.Ids != nil {
		ids := make([]int64, len(f.Ids))
		for i, id := range f.Ids {
			ids[i] = int64(id)
		}
		conds = append(conds, "id = ANY("+next(pq.Array(ids))+")")
	}
	if f.SenderId != 0 {
		conds = append(conds, "sender_id = "+next(f.SenderId))
	}
	if f.ReceiverId != 0 {
		conds = append(conds, "receiver_id = "+next(f.ReceiverId))
	}
	if f.Between != [2]int{} {
		a, b := next(f.Between[0]), next(f.Between[1])
		conds = append(conds, fmt.Sprintf("((sender_id = %s AND receiver_id = %s) OR (sender_id = %s AND receiver_id = %s))", a, b, b, a))
	}
	if f.Unread {
		conds = append(conds, "NOT is_read")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/linkerbell/campus-market-chat/internal/core"
	"github.com/linkerbell/campus-market-chat/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement so the same code runs on the pool or inside a transaction.
type queries struct {
	q   querier
	now func() time.Time
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	queries
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{
		queries: queries{q: db, now: time.Now},
		db:      db,
	}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SetClock overrides the time source used for message timestamps.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a transaction, committing on success and rolling back on error.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx store.ChatTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&queries{q: tx, now: s.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ==== Seeding (users and rooms are owned by the marketplace side) ====

// CreateUser inserts a user with the given nickname.
func (s *SQLiteStore) CreateUser(ctx context.Context, nickname string) (*store.User, error) {
	result, err := s.q.ExecContext(ctx, `INSERT INTO users (nickname) VALUES (?)`, nickname)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateChatRoom opens a room on an item and creates chat properties for both
// participants with notifications enabled.
func (s *SQLiteStore) CreateChatRoom(ctx context.Context, itemID, buyerID, sellerID int64, title string) (*store.ChatRoom, error) {
	var room *store.ChatRoom
	err := s.WithTx(ctx, func(tx store.ChatTx) error {
		q := tx.(*queries)

		result, err := q.q.ExecContext(ctx,
			`INSERT INTO chat_rooms (item_id, buyer_id, seller_id) VALUES (?, ?, ?)`,
			itemID, buyerID, sellerID,
		)
		if err != nil {
			return fmt.Errorf("insert chat room: %w", err)
		}
		roomID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}

		for _, userID := range []int64{buyerID, sellerID} {
			if _, err := q.q.ExecContext(ctx,
				`INSERT INTO chat_properties (user_id, chat_room_id, title, is_alarm, is_exited) VALUES (?, ?, ?, 1, 0)`,
				userID, roomID, title,
			); err != nil {
				return fmt.Errorf("insert chat properties: %w", err)
			}
		}

		room, err = q.GetRoomByID(ctx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ==== UserStore implementation ====

// GetUserByID retrieves a user by ID.
func (s *queries) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, nickname, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Nickname,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== RoomStore implementation ====

// GetRoomByID retrieves a chat room by ID.
func (s *queries) GetRoomByID(ctx context.Context, id int64) (*store.ChatRoom, error) {
	query := `
		SELECT id, item_id, buyer_id, seller_id, created_at
		FROM chat_rooms
		WHERE id = ?
	`
	var room store.ChatRoom
	err := s.q.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.ItemID,
		&room.BuyerID,
		&room.SellerID,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat room %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat room: %w", err)
	}

	return &room, nil
}

// ListRoomIDsForUser lists rooms the user participates in and has not exited.
func (s *queries) ListRoomIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT chat_room_id
		FROM chat_properties
		WHERE user_id = ? AND is_exited = 0
		ORDER BY chat_room_id
	`
	return s.queryIDs(ctx, query, userID)
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and assigns its ID and CreatedAt.
func (s *queries) SaveMessage(ctx context.Context, msg *store.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (chat_room_id, user_id, content, content_type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	createdAt := s.now().UTC()

	result, err := s.q.ExecContext(ctx, query,
		msg.ChatRoomID,
		msg.UserID,
		msg.Content,
		string(msg.ContentType),
		msg.IsRead,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

// GetMessage retrieves a message by ID.
func (s *queries) GetMessage(ctx context.Context, id int64) (*store.ChatMessage, error) {
	query := `
		SELECT id, chat_room_id, user_id, content, content_type, is_read, created_at
		FROM chat_messages
		WHERE id = ?
	`
	var msg store.ChatMessage
	var contentType string
	err := s.q.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.ChatRoomID,
		&msg.UserID,
		&msg.Content,
		&contentType,
		&msg.IsRead,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat message: %w", err)
	}

	msg.ContentType = core.ContentType(contentType)
	return &msg, nil
}

// ListMessageIDsSince lists message ids of a room created at or after since, oldest first.
func (s *queries) ListMessageIDsSince(ctx context.Context, roomID int64, since time.Time) ([]int64, error) {
	query := `
		SELECT id
		FROM chat_messages
		WHERE chat_room_id = ? AND created_at >= ?
		ORDER BY created_at ASC, id ASC
	`
	return s.queryIDs(ctx, query, roomID, since.UTC())
}

// MarkMessageRead sets the read flag of a message.
func (s *queries) MarkMessageRead(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `UPDATE chat_messages SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("update chat message: %w", err)
	}
	return expectAffected(result, fmt.Sprintf("chat message %d", id))
}

// ==== ChatPropertiesStore implementation ====

// GetChatProperties retrieves the settings of a user for a room.
func (s *queries) GetChatProperties(ctx context.Context, userID, roomID int64) (*store.ChatProperties, error) {
	query := `
		SELECT id, user_id, chat_room_id, title, is_alarm, is_exited
		FROM chat_properties
		WHERE user_id = ? AND chat_room_id = ?
	`
	var props store.ChatProperties
	err := s.q.QueryRowContext(ctx, query, userID, roomID).Scan(
		&props.ID,
		&props.UserID,
		&props.ChatRoomID,
		&props.Title,
		&props.IsAlarm,
		&props.IsExited,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat properties %d/%d: %w", userID, roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat properties: %w", err)
	}

	return &props, nil
}

// SetAlarm turns notifications for a room on or off.
func (s *queries) SetAlarm(ctx context.Context, userID, roomID int64, alarm bool) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE chat_properties SET is_alarm = ? WHERE user_id = ? AND chat_room_id = ?`,
		alarm, userID, roomID,
	)
	if err != nil {
		return fmt.Errorf("update alarm: %w", err)
	}
	return expectAffected(result, fmt.Sprintf("chat properties %d/%d", userID, roomID))
}

// MarkExited flags the user as having left the room.
func (s *queries) MarkExited(ctx context.Context, userID, roomID int64) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE chat_properties SET is_exited = 1 WHERE user_id = ? AND chat_room_id = ?`,
		userID, roomID,
	)
	if err != nil {
		return fmt.Errorf("update exited: %w", err)
	}
	return expectAffected(result, fmt.Sprintf("chat properties %d/%d", userID, roomID))
}

// ==== DeviceTokenStore implementation ====

// SaveDeviceToken registers a token for a user. Re-registering moves the token to the user.
func (s *queries) SaveDeviceToken(ctx context.Context, userID int64, token string) (*store.DeviceToken, error) {
	query := `
		INSERT INTO user_fcm_tokens (user_id, fcm_token)
		VALUES (?, ?)
		ON CONFLICT (fcm_token) DO UPDATE SET user_id = excluded.user_id
	`
	if _, err := s.q.ExecContext(ctx, query, userID, token); err != nil {
		return nil, fmt.Errorf("upsert device token: %w", err)
	}

	var dt store.DeviceToken
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, fcm_token, created_at FROM user_fcm_tokens WHERE fcm_token = ?`,
		token,
	).Scan(&dt.ID, &dt.UserID, &dt.Token, &dt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query device token: %w", err)
	}

	return &dt, nil
}

// ListNotificationTargets resolves the devices to notify for a message in a room.
func (s *queries) ListNotificationTargets(ctx context.Context, roomID, senderID int64) ([]store.NotificationTarget, error) {
	query := `
		SELECT cp.user_id, t.fcm_token, cp.title
		FROM chat_properties cp
		JOIN user_fcm_tokens t ON t.user_id = cp.user_id
		WHERE cp.chat_room_id = ? AND cp.user_id <> ? AND cp.is_alarm = 1 AND cp.is_exited = 0
		ORDER BY cp.user_id, t.id
	`
	rows, err := s.q.QueryContext(ctx, query, roomID, senderID)
	if err != nil {
		return nil, fmt.Errorf("query notification targets: %w", err)
	}
	defer rows.Close()

	targets := make([]store.NotificationTarget, 0)
	for rows.Next() {
		var target store.NotificationTarget
		if err := rows.Scan(&target.UserID, &target.Token, &target.RoomTitle); err != nil {
			return nil, fmt.Errorf("scan notification target: %w", err)
		}
		targets = append(targets, target)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification targets: %w", err)
	}

	return targets, nil
}

// DeleteDeviceTokensByToken deletes every record holding token and returns the count.
func (s *queries) DeleteDeviceTokensByToken(ctx context.Context, token string) (int64, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM user_fcm_tokens WHERE fcm_token = ?`, token)
	if err != nil {
		return 0, fmt.Errorf("delete device token: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ==== helpers ====

func (s *queries) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}

	return ids, nil
}

func expectAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

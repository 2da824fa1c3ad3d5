package store

import (
	"context"
	"errors"
	"time"

	"github.com/linkerbell/campus-market-chat/internal/core"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// User represents a marketplace user as seen by the chat subsystem.
type User struct {
	ID        int64
	Nickname  string
	CreatedAt time.Time
}

// ChatRoom represents a chat room opened on an item between a buyer and the seller.
type ChatRoom struct {
	ID        int64
	ItemID    int64
	BuyerID   int64
	SellerID  int64
	CreatedAt time.Time
}

// ChatMessage represents a persisted chat message.
type ChatMessage struct {
	ID          int64
	ChatRoomID  int64
	UserID      int64
	Content     string
	ContentType core.ContentType
	IsRead      bool
	CreatedAt   time.Time
}

// ChatProperties holds per-user settings for one chat room.
type ChatProperties struct {
	ID         int64
	UserID     int64
	ChatRoomID int64
	Title      string
	IsAlarm    bool
	IsExited   bool
}

// DeviceToken maps a user's device to a push registration token.
type DeviceToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
}

// NotificationTarget is a recipient device resolved for a room message.
type NotificationTarget struct {
	UserID    int64
	Token     string
	RoomTitle string
}

// UserStore handles user lookups.
type UserStore interface {
	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// RoomStore handles chat room lookups.
type RoomStore interface {
	// GetRoomByID retrieves a chat room by ID.
	GetRoomByID(ctx context.Context, id int64) (*ChatRoom, error)

	// ListRoomIDsForUser lists rooms the user participates in and has not exited.
	ListRoomIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// SaveMessage persists a message and assigns its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *ChatMessage) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*ChatMessage, error)

	// ListMessageIDsSince lists message ids of a room created at or after since, oldest first.
	ListMessageIDsSince(ctx context.Context, roomID int64, since time.Time) ([]int64, error)

	// MarkMessageRead sets the read flag of a message.
	MarkMessageRead(ctx context.Context, id int64) error
}

// ChatPropertiesStore handles per-user room settings.
type ChatPropertiesStore interface {
	// GetChatProperties retrieves the settings of a user for a room.
	GetChatProperties(ctx context.Context, userID, roomID int64) (*ChatProperties, error)

	// SetAlarm turns notifications for a room on or off.
	SetAlarm(ctx context.Context, userID, roomID int64, alarm bool) error

	// MarkExited flags the user as having left the room.
	MarkExited(ctx context.Context, userID, roomID int64) error
}

// DeviceTokenStore handles push registration tokens.
type DeviceTokenStore interface {
	// SaveDeviceToken registers a token for a user. Re-registering moves the token to the user.
	SaveDeviceToken(ctx context.Context, userID int64, token string) (*DeviceToken, error)

	// ListNotificationTargets resolves the devices to notify for a message in a room:
	// every other member with the alarm on who has not exited.
	ListNotificationTargets(ctx context.Context, roomID, senderID int64) ([]NotificationTarget, error)

	// DeleteDeviceTokensByToken deletes every record holding token and returns the count.
	// Zero matches is not an error.
	DeleteDeviceTokensByToken(ctx context.Context, token string) (int64, error)
}

// ChatTx is the subset of the store available inside a dispatch transaction.
type ChatTx interface {
	UserStore
	RoomStore
	MessageStore
}

// Transactor runs fn inside one database transaction. fn returning an error rolls
// the transaction back.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx ChatTx) error) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore
	ChatPropertiesStore
	DeviceTokenStore
	Transactor

	// Close closes the underlying database connection.
	Close() error
}

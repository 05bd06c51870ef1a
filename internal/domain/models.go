// Package domain defines the persistence models for users, objects and the
// social graph around them. These types are mapped with GORM and form the
// core data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Stream message type codes. They are persisted, so values are stable.
const (
	StreamComment        = 1
	StreamRecommendation = 2
	StreamFollow         = 3
)

// User is a registered account. The username is the identity and is stored
// lowercase-folded; uniqueness is enforced across non-deleted rows, and a
// soft-deleted user keeps its username reserved (uniqueness checks run
// Unscoped in the repo layer).
//
// PasswordHash is hex(sha256(salt || password)) and doubles as the secret for
// the signed-request protocol; the plaintext password never crosses the wire
// after issuance.
type User struct {
	ID           string         `json:"-"        gorm:"type:char(36);primaryKey"`
	Username     string         `json:"username" gorm:"type:varchar(16);not null;uniqueIndex:ux_users_username"`
	Email        string         `json:"email"    gorm:"type:varchar(255);not null;index"`
	Firstname    string         `json:"firstname" gorm:"type:varchar(32)"`
	Lastname     string         `json:"lastname"  gorm:"type:varchar(32)"`
	Gender       string         `json:"gender"    gorm:"type:varchar(1)"` // "", "m" or "f"
	Language     string         `json:"language"  gorm:"type:varchar(8)"`
	PasswordHash string         `json:"-"        gorm:"type:char(64);not null"`
	PasswordSalt string         `json:"-"        gorm:"type:char(16);not null"`
	AvatarFile   string         `json:"-"        gorm:"type:varchar(255)"`
	Protected    bool           `json:"protected"`
	Blocked      bool           `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"-"`
	DeletedAt    gorm.DeletedAt `json:"-"        gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UserRequest is a pending account creation, valid until CreatedAt plus the
// configured request timeout and consumed exactly once at activation.
type UserRequest struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Code      string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_requests_code"`
	Username  string    `gorm:"type:varchar(16);not null;index"`
	Email     string    `gorm:"type:varchar(255);not null;index"`
	CreatedAt time.Time
}

// TableName returns the database table name for UserRequest.
func (UserRequest) TableName() string { return "user_requests" }

// PasswordRequest is a pending password reset with its own timeout.
type PasswordRequest struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Code      string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_password_requests_code"`
	UserID    string    `gorm:"type:char(36);not null;index"`
	CreatedAt time.Time

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for PasswordRequest.
func (PasswordRequest) TableName() string { return "password_requests" }

// Object is an opaque shared content record identified by its GUID. Aggregate
// counters (votes, favorites, comments) are maintained inside the same
// transactions that create the underlying rows.
type Object struct {
	GUID      string         `json:"guid"   gorm:"type:char(36);primaryKey"`
	Source    string         `json:"source" gorm:"type:text;not null"`
	Locked    bool           `json:"-"`
	Reported  bool           `json:"-"`
	Up        int            `json:"up"`
	Down      int            `json:"down"`
	Favorites int            `json:"favorites"`
	Comments  int            `json:"comments"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Object.
func (Object) TableName() string { return "objects" }

// Tag links a user-assigned tag to an object. The tag text is stored
// lowercase so the (user, object, tag) triple is case-insensitively unique.
type Tag struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:char(36);not null;uniqueIndex:ux_tags_user_object_tag"`
	ObjectGUID string    `gorm:"type:char(36);not null;uniqueIndex:ux_tags_user_object_tag;index"`
	Tag        string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_tags_user_object_tag;index"`
	CreatedAt  time.Time

	Object Object `gorm:"foreignKey:ObjectGUID;references:GUID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string { return "tags" }

// Score is a single up/down vote; at most one row per (user, object).
type Score struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:char(36);not null;uniqueIndex:ux_scores_user_object"`
	ObjectGUID string    `gorm:"type:char(36);not null;uniqueIndex:ux_scores_user_object;index"`
	Up         bool      `gorm:"not null"`
	CreatedAt  time.Time

	Object Object `gorm:"foreignKey:ObjectGUID;references:GUID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Score.
func (Score) TableName() string { return "scores" }

// Comment is a user comment on an object. Soft-deleted rows keep the history
// (and the object's comment counter) intact.
type Comment struct {
	ID         string         `json:"id"      gorm:"type:char(36);primaryKey"`
	ObjectGUID string         `json:"guid"    gorm:"type:char(36);not null;index:idx_comments_object"`
	UserID     string         `json:"-"       gorm:"type:char(36);not null;index"`
	Username   string         `json:"user"    gorm:"type:varchar(16);not null"`
	Text       string         `json:"text"    gorm:"type:text;not null"`
	CreatedAt  time.Time      `json:"created_at" gorm:"index:idx_comments_object,priority:2"`
	UpdatedAt  time.Time      `json:"-"`
	DeletedAt  gorm.DeletedAt `json:"-"       gorm:"index"`

	Object Object `json:"-" gorm:"foreignKey:ObjectGUID;references:GUID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// Favorite marks an object as a favorite of a user; unique per pair and
// toggled idempotently.
type Favorite struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:char(36);not null;uniqueIndex:ux_favorites_user_object"`
	ObjectGUID string    `gorm:"type:char(36);not null;uniqueIndex:ux_favorites_user_object;index"`
	CreatedAt  time.Time

	Object Object `gorm:"foreignKey:ObjectGUID;references:GUID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Favorite.
func (Favorite) TableName() string { return "favorites" }

// Friendship is a directed follower → followee edge; unique per pair and
// toggled idempotently.
type Friendship struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	FollowerID string    `gorm:"type:char(36);not null;uniqueIndex:ux_friendships_edge;index"`
	FolloweeID string    `gorm:"type:char(36);not null;uniqueIndex:ux_friendships_edge;index"`
	CreatedAt  time.Time
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// Recommendation records one user recommending an object to another; unique
// per (sender, receiver, object) triple.
type Recommendation struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	SenderID   string    `gorm:"type:char(36);not null;uniqueIndex:ux_recommendations_triple"`
	ReceiverID string    `gorm:"type:char(36);not null;uniqueIndex:ux_recommendations_triple;index"`
	ObjectGUID string    `gorm:"type:char(36);not null;uniqueIndex:ux_recommendations_triple;index"`
	CreatedAt  time.Time

	Object Object `gorm:"foreignKey:ObjectGUID;references:GUID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Recommendation.
func (Recommendation) TableName() string { return "recommendations" }

// StreamMessage is a per-receiver notification row driving the activity feed.
// Rows with an empty ReceiverID mirror public events.
type StreamMessage struct {
	ID         string    `json:"id"     gorm:"type:char(36);primaryKey"`
	ReceiverID string    `json:"-"      gorm:"type:char(36);index:idx_stream_receiver"`
	Type       int       `json:"type"   gorm:"not null"`
	Source     string    `json:"source" gorm:"type:varchar(255);not null"` // acting username
	Target     string    `json:"target" gorm:"type:varchar(255);not null"` // object guid or username
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_stream_receiver,priority:2"`
}

// TableName returns the database table name for StreamMessage.
func (StreamMessage) TableName() string { return "stream_messages" }

// Mail is a queued outgoing message. Once Sent flips to true it is never
// resent; unsent rows past their lifetime are eligible for purge.
type Mail struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Subject   string    `gorm:"type:varchar(255);not null"`
	Body      string    `gorm:"type:text;not null"`
	Receiver  string    `gorm:"type:varchar(255);not null"` // address or "user:<username>"
	Lifetime  int64     `gorm:"not null"`                   // seconds
	Sent      bool      `gorm:"not null;default:false;index:idx_mails_sent"`
	CreatedAt time.Time `gorm:"index:idx_mails_sent,priority:2"`
}

// TableName returns the database table name for Mail.
func (Mail) TableName() string { return "mails" }

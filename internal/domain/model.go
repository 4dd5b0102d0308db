package domain

import "time"

// TimestampLayout is the wire format for message timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// User is an authenticated identity: unique username plus credential hash.
type User struct {
	ID           uint
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Message is a persisted chat entry. Immutable once stored; the username is
// a denormalized copy of the sender at send time, not a foreign key.
type Message struct {
	ID        uint
	Username  string
	Content   string
	Timestamp time.Time
}

// ToPayload converts a Message to its wire form.
func (m *Message) ToPayload() MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp.Format(TimestampLayout),
	}
}

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"type:varchar(50);not null"`
	Content   string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:        m.ID,
		Username:  m.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

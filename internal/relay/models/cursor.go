package models

import "time"

// Cursor 某个来源最后一条成功转发的消息 ID
// LastMessageID 对同一 EntityID 只会增大，重启后用于免重复续传
type Cursor struct {
	EntityID      string    `bson:"entity_id"`
	LastMessageID int64     `bson:"last_message_id"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

package models

import "time"

// MediaKind 媒体类型标签，在消息进入系统时解析一次，之后不再重新推断
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other" // 音频、贴纸等没有对应过滤开关的媒体
)

// MessageView 中继引擎看到的消息视图
// 只保留路由和过滤所需的字段，与具体平台的消息结构解耦
type MessageView struct {
	ChatID        int64     // 来源聊天 ID
	MessageID     int64     // 平台消息 ID，同一聊天内单调递增
	ServiceAction bool      // 是否为服务消息（入群、置顶等）
	Media         MediaKind // 媒体类型标签
	HasText       bool      // 是否包含文本内容
	SentAt        time.Time // 消息发送时间
}

// HasMedia 报告消息是否携带媒体
func (m MessageView) HasMedia() bool {
	return m.Media != MediaNone && m.Media != ""
}

// ArchivedMessage 本地消息档案记录
// Bot API 无法回读任意历史消息，因此每条观察到的消息都会落库，
// 历史回填从这份档案读取
type ArchivedMessage struct {
	ChatID        int64     `bson:"chat_id"`
	MessageID     int64     `bson:"message_id"`
	ServiceAction bool      `bson:"service_action"`
	Media         MediaKind `bson:"media"`
	HasText       bool      `bson:"has_text"`
	SentAt        time.Time `bson:"sent_at"`
	CreatedAt     time.Time `bson:"created_at"`
}

// View 将档案记录还原为消息视图
func (a *ArchivedMessage) View() MessageView {
	return MessageView{
		ChatID:        a.ChatID,
		MessageID:     a.MessageID,
		ServiceAction: a.ServiceAction,
		Media:         a.Media,
		HasText:       a.HasText,
		SentAt:        a.SentAt,
	}
}

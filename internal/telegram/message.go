package telegram

import (
	"time"

	botModels "github.com/go-telegram/bot/models"

	"tg_relay/internal/relay/models"
)

// newMessageView 将平台消息转换为引擎的消息视图
// 媒体类型在此解析一次，后续过滤不再碰平台结构
func newMessageView(msg *botModels.Message) models.MessageView {
	return models.MessageView{
		ChatID:        msg.Chat.ID,
		MessageID:     int64(msg.ID),
		ServiceAction: isServiceAction(msg),
		Media:         mediaKind(msg),
		HasText:       msg.Text != "" || msg.Caption != "",
		SentAt:        time.Unix(int64(msg.Date), 0),
	}
}

// archivedFromView 构造档案记录
func archivedFromView(view models.MessageView) *models.ArchivedMessage {
	return &models.ArchivedMessage{
		ChatID:        view.ChatID,
		MessageID:     view.MessageID,
		ServiceAction: view.ServiceAction,
		Media:         view.Media,
		HasText:       view.HasText,
		SentAt:        view.SentAt,
	}
}

// mediaKind 解析消息的媒体类型标签
// 没有对应过滤开关的媒体（音频、贴纸、动图等）归入 MediaOther
func mediaKind(msg *botModels.Message) models.MediaKind {
	switch {
	case len(msg.Photo) > 0:
		return models.MediaPhoto
	case msg.Video != nil:
		return models.MediaVideo
	case msg.Document != nil:
		return models.MediaDocument
	case msg.Audio != nil, msg.Voice != nil, msg.Sticker != nil,
		msg.Animation != nil, msg.VideoNote != nil:
		return models.MediaOther
	default:
		return models.MediaNone
	}
}

// isServiceAction 报告消息是否为服务消息（入群、改名、置顶等）
func isServiceAction(msg *botModels.Message) bool {
	return len(msg.NewChatMembers) > 0 ||
		msg.LeftChatMember != nil ||
		msg.NewChatTitle != "" ||
		len(msg.NewChatPhoto) > 0 ||
		msg.DeleteChatPhoto ||
		msg.GroupChatCreated ||
		msg.SupergroupChatCreated ||
		msg.ChannelChatCreated ||
		msg.PinnedMessage != nil ||
		msg.MigrateToChatID != 0 ||
		msg.MigrateFromChatID != 0
}

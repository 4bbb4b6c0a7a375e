package relay

import "tg_relay/internal/relay/models"

// ShouldRelay 判断消息是否应当中继
// 纯函数，无 I/O，规则按顺序：
//  1. 服务消息一律不中继
//  2. MediaOnly 开启时拒绝无媒体消息
//  3. 有媒体时只看对应类型的开关，没有开关的媒体类型一律拒绝
//  4. 无媒体时看 TextMessages 开关
//
// 所有开关均为 false 时不中继任何消息
func ShouldRelay(msg models.MessageView, cfg models.FilterConfig) bool {
	if msg.ServiceAction {
		return false
	}

	if cfg.MediaOnly && !msg.HasMedia() {
		return false
	}

	if msg.HasMedia() {
		switch msg.Media {
		case models.MediaPhoto:
			return cfg.Photos
		case models.MediaVideo:
			return cfg.Videos
		case models.MediaDocument:
			return cfg.Documents
		default:
			return false
		}
	}

	return cfg.TextMessages
}

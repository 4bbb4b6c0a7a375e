package models

// FilterConfig 消息过滤配置
// 全部为 false 时不中继任何消息（而不是全部放行）
type FilterConfig struct {
	MediaOnly    bool `bson:"media_only" json:"media_only"`
	Photos       bool `bson:"photos" json:"photos"`
	Videos       bool `bson:"videos" json:"videos"`
	Documents    bool `bson:"documents" json:"documents"`
	TextMessages bool `bson:"text_messages" json:"text_messages"`
}

// DefaultFilterConfig 返回默认过滤配置
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MediaOnly:    false,
		Photos:       true,
		Videos:       true,
		Documents:    false,
		TextMessages: true,
	}
}

// FilterUpdate 过滤配置的部分更新，nil 字段保持原值
type FilterUpdate struct {
	MediaOnly    *bool
	Photos       *bool
	Videos       *bool
	Documents    *bool
	TextMessages *bool
}

// Apply 将更新套用到现有配置并返回结果
func (u FilterUpdate) Apply(cfg FilterConfig) FilterConfig {
	if u.MediaOnly != nil {
		cfg.MediaOnly = *u.MediaOnly
	}
	if u.Photos != nil {
		cfg.Photos = *u.Photos
	}
	if u.Videos != nil {
		cfg.Videos = *u.Videos
	}
	if u.Documents != nil {
		cfg.Documents = *u.Documents
	}
	if u.TextMessages != nil {
		cfg.TextMessages = *u.TextMessages
	}
	return cfg
}

// Empty 报告更新是否不包含任何字段
func (u FilterUpdate) Empty() bool {
	return u.MediaOnly == nil && u.Photos == nil && u.Videos == nil &&
		u.Documents == nil && u.TextMessages == nil
}

package models

import (
	"strconv"
	"time"
)

// 实体引用的特殊标记，指向当前登录账号
const SelfRef = "me"

// Route 中继路由配置
// Source/Destination 是实体引用：数字 ID、用户名或 "me"/"self" 标记
type Route struct {
	Source      string    `bson:"source" json:"source"`
	Destination string    `bson:"destination" json:"destination"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// Entity 已解析的平台实体
type Entity struct {
	ID       int64  // 平台内部 ID
	Title    string // 群组/频道标题
	Username string // 用户名（可为空）
	Self     bool   // 是否为当前账号自身
}

// DisplayName 返回实体的友好名称
func (e *Entity) DisplayName() string {
	if e == nil {
		return "unknown"
	}
	if e.Title != "" {
		return e.Title
	}
	if e.Username != "" {
		return "@" + e.Username
	}
	if e.Self {
		return SelfRef
	}
	return strconv.FormatInt(e.ID, 10)
}

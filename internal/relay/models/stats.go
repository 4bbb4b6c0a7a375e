package models

import "time"

// Stats 中继服务运行统计
// 按需重新计算，不作为权威状态持久化
type Stats struct {
	State             string    `json:"state"`
	TotalRoutes       int       `json:"total_routes"`
	ActiveRoutes      int       `json:"active_routes"`
	ProcessedMessages int64     `json:"processed_messages"`
	LastMessageID     int64     `json:"last_message_id"`
	ErrorsCount       int64     `json:"errors_count"`
	LastUpdate        time.Time `json:"last_update"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
}

package models

import (
	"time"
)

// 注意：
// - 保持与 internal/migrate/sql 中的迁移脚本对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// CommandLog 映射 command_logs 表（下行命令审计）
type CommandLog struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	// 单次调用的关联 ID
	CorrelationID string `gorm:"column:correlation_id;type:uuid;not null" json:"correlation_id"`
	// 发送时的串口会话，未连接时为空
	SessionID string `gorm:"column:session_id;type:text;not null;default:''" json:"session_id"`
	Port      string `gorm:"column:port;type:text;not null;default:''" json:"port"`
	Command   string `gorm:"column:command;type:text;not null" json:"command"`
	// 线上帧的十六进制形式，校验失败时为空
	FrameHex string `gorm:"column:frame_hex;type:text;not null;default:''" json:"frame_hex"`
	// ok | rejected | rate_limited | failed
	Result    string    `gorm:"column:result;type:text;not null" json:"result"`
	Error     string    `gorm:"column:error;type:text;not null;default:''" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CommandLog) TableName() string { return "command_logs" }

// 审计结果
const (
	ResultOK          = "ok"
	ResultRejected    = "rejected"
	ResultRateLimited = "rate_limited"
	ResultFailed      = "failed"
)

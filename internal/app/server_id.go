package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateServerID 生成服务实例ID
// 优先使用环境变量SERVER_ID，否则生成 pulseox-{hostname}-{uuid前8位}
func GenerateServerID() string {
	if serverID := os.Getenv("SERVER_ID"); serverID != "" {
		return serverID
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("pulseox-%s-%s", hostname, shortUUID)
}

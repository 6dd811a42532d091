package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到，这是一个正常的查询结果，不代表后端故障
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示写入违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrUnavailable 表示后端当前不可用 (未配置或连接失败)
	ErrUnavailable = errors.New("repository: backend unavailable")
)

// 特定资源的错误
var (
	ErrRoomNotFound        = ErrNotFound
	ErrParticipantNotFound = ErrNotFound
)

package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation 请求缺少必填字段，只报告给发起请求的连接
	ErrValidation = errors.New("validation failed")
	// ErrNotCreator 只有房间创建者可以结束会议
	ErrNotCreator = errors.New("only the room creator can end the meeting")
	// ErrInternal 存储等内部错误
	ErrInternal = errors.New("internal server error")
)

// validationError 把 validator 的错误转换成 ErrValidation，并列出缺失的字段
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fmt.Errorf("%w: missing or invalid fields: %s", ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// internalError 包装存储层错误
func internalError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}

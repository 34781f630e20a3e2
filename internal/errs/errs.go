package errs

import (
	"context"
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

var (
	// ErrNotFound 单条记录查询未命中
	ErrNotFound = errors.New("not found")
	// ErrStoreTimeout 存储调用超过调用方的截止时间
	ErrStoreTimeout = errors.New("store timeout")
	// ErrInvalidAgent 探针数据校验失败
	ErrInvalidAgent = errors.New("invalid agent")
)

// ConfigurationError 存储无法初始化（连接描述错误或不可达）
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Stack 返回产生错误时的调用栈
func (e *ConfigurationError) Stack() string {
	var stacked *goerrors.Error
	if errors.As(e.Err, &stacked) {
		return stacked.ErrorStack()
	}
	return ""
}

// Configuration 包装为 ConfigurationError，并记录调用栈
func Configuration(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigurationError{Op: op, Err: goerrors.Wrap(err, 1)}
}

// Configurationf 以格式化消息构造 ConfigurationError
func Configurationf(op, format string, args ...interface{}) error {
	return &ConfigurationError{Op: op, Err: goerrors.Wrap(fmt.Errorf(format, args...), 1)}
}

// IsConfiguration 判断是否为配置错误
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// Store 将存储层错误转换为调用方可识别的错误。
// 超时映射为 ErrStoreTimeout，其余错误原样返回。
func Store(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrStoreTimeout, err)
	}
	return err
}

package errors

import "errors"

// ErrConcurrencyConflict 并发冲突：版本号不匹配或同一记录正被其他请求修改
var ErrConcurrencyConflict = errors.New("数据已被其他操作修改，请刷新后重试")

package dto

import "activity-points/backend/internal/access"

// ScopeResponse 查询作用域响应
// predicate 供 CRUD 层拼接查询条件，where 为便于排查的可读形式
type ScopeResponse struct {
	Resource  string           `json:"resource"`
	Mine      bool             `json:"mine"`
	Predicate access.Predicate `json:"predicate"`
	Where     string           `json:"where"`
}

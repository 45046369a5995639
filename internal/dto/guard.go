package dto

// ── 写入守卫 DTO ──

// GuardCheckRequest 写入前检查请求
// half / year_field 取自被写入记录自身的学期字段
type GuardCheckRequest struct {
	ClassID   string `json:"class_id"   binding:"required,max=64"`
	Half      string `json:"half"       binding:"required,max=16"`
	YearField string `json:"year_field" binding:"max=16"`
}

// GuardCheckUserRequest 按用户所属班级检查；user_id 缺省为调用者本人
type GuardCheckUserRequest struct {
	UserID    string `json:"user_id"    binding:"omitempty,max=64"`
	Half      string `json:"half"       binding:"required,max=16"`
	YearField string `json:"year_field" binding:"max=16"`
}

// GuardCheckResponse 放行响应
type GuardCheckResponse struct {
	Allowed bool `json:"allowed"`
}

package access

import "strings"

// Role 系统角色
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleTeacher      Role = "TEACHER"
	RoleClassMonitor Role = "CLASS_MONITOR"
	RoleStudent      Role = "STUDENT"
)

// roleAliases 历史数据与旧版 Token 中出现过的角色写法
var roleAliases = map[string]Role{
	"ADMIN":         RoleAdmin,
	"QUAN_TRI_VIEN": RoleAdmin,
	"TEACHER":       RoleTeacher,
	"GIANG_VIEN":    RoleTeacher,
	"CLASS_MONITOR": RoleClassMonitor,
	"MONITOR":       RoleClassMonitor,
	"LOP_TRUONG":    RoleClassMonitor,
	"STUDENT":       RoleStudent,
	"SINH_VIEN":     RoleStudent,
}

// NormalizeRole 归一化角色名（大小写、空格、连字符）
// 未知角色原样返回大写形式，调用方通过 Known 判断
func NormalizeRole(s string) Role {
	up := strings.ToUpper(strings.TrimSpace(s))
	key := strings.NewReplacer(" ", "_", "-", "_").Replace(up)
	if r, ok := roleAliases[key]; ok {
		return r
	}
	return Role(up)
}

// Known 是否为已识别角色
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleClassMonitor, RoleStudent:
		return true
	}
	return false
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Actor 发起请求的主体
type Actor struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	ClassID string `json:"class_id,omitempty"` // 学生 / 班长所属班级，可为空
}

// Resource 受作用域约束的资源
type Resource string

const (
	ResourceActivities    Resource = "activities"
	// ResourceRegistrations 的 class_id 条件指 students.class_id，registrations 表本身无该列
	// 调用方须 JOIN students 并以 ApplyTo(db, "students") 应用作用域
	ResourceRegistrations Resource = "registrations"
	ResourceStudents      Resource = "students"
	ResourceClasses       Resource = "classes"
)

// ParseResource 解析作用域资源名
func ParseResource(s string) (Resource, bool) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case ResourceActivities, ResourceRegistrations, ResourceStudents, ResourceClasses:
		return r, true
	}
	return "", false
}

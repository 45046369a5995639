package access

// policies 资源 → 操作 → 允许的角色
// ADMIN 对所有资源放行，不在表中重复列出
var policies = map[string]map[string][]Role{
	"activities": {
		"read":    {RoleTeacher, RoleClassMonitor, RoleStudent},
		"create":  {RoleTeacher, RoleClassMonitor},
		"update":  {RoleTeacher, RoleClassMonitor}, // 另需归属校验
		"delete":  {RoleTeacher},
		"approve": {RoleTeacher},
		"reject":  {RoleTeacher},
	},
	"registrations": {
		"read":        {RoleTeacher, RoleClassMonitor},
		"create":      {RoleStudent, RoleClassMonitor},
		"approve":     {RoleTeacher, RoleClassMonitor},
		"reject":      {RoleTeacher, RoleClassMonitor},
		"cancel":      {RoleStudent, RoleClassMonitor},
		"bulkApprove": {RoleTeacher, RoleClassMonitor},
	},
	"students": {
		"read": {RoleTeacher, RoleClassMonitor, RoleStudent},
	},
	"classes": {
		"read":          {RoleTeacher, RoleClassMonitor},
		"updateMonitor": {RoleTeacher},
	},
	"scopes": {
		"read": {RoleTeacher, RoleClassMonitor, RoleStudent},
	},
	"semesters": {
		"read":        {RoleTeacher, RoleClassMonitor, RoleStudent},
		"activate":    {},
		"proposeLock": {RoleClassMonitor, RoleTeacher},
		"softLock":    {RoleTeacher},
		"hardLock":    {},
		"rollback":    {RoleTeacher},
		"guard":       {RoleTeacher, RoleClassMonitor, RoleStudent},
	},
}

// HasPermission 判断角色是否可对资源执行操作
// 未知资源或操作一律拒绝
func HasPermission(role Role, resource, action string) bool {
	if role.IsAdmin() {
		return true
	}
	actions, ok := policies[resource]
	if !ok {
		return false
	}
	allowed, ok := actions[action]
	if !ok {
		return false
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// Permissions 列出角色拥有的全部 resource.action
func Permissions(role Role) map[string]bool {
	out := make(map[string]bool)
	for resource, actions := range policies {
		for action := range actions {
			out[resource+"."+action] = HasPermission(role, resource, action)
		}
	}
	return out
}

package access

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 作用域谓词可约束的字段（与 CRUD 层表列名一致）
const (
	FieldID        = "id"
	FieldClassID   = "class_id"
	FieldCreatorID = "creator_id"
	FieldStudentID = "student_id"
)

type predicateKind int

const (
	kindNone predicateKind = iota // 零值即“不匹配任何记录”
	kindAll
	kindWhere
)

// Clause 单个约束：Field ∈ Values
type Clause struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Predicate 查询作用域谓词
// 三种形态：不受限、永不匹配、若干 IN 条件的合取。零值为永不匹配。
type Predicate struct {
	kind    predicateKind
	clauses []Clause
}

// All 不受限
func All() Predicate { return Predicate{kind: kindAll} }

// None 永不匹配
func None() Predicate { return Predicate{kind: kindNone} }

// In 字段取值属于集合；集合为空时退化为 None
func In(field string, values ...string) Predicate {
	set := dedupe(values)
	if len(set) == 0 {
		return None()
	}
	return Predicate{kind: kindWhere, clauses: []Clause{{Field: field, Values: set}}}
}

// Eq 字段等于某值
func Eq(field, value string) Predicate {
	if value == "" {
		return None()
	}
	return In(field, value)
}

func (p Predicate) IsAll() bool  { return p.kind == kindAll }
func (p Predicate) IsNone() bool { return p.kind == kindNone }

// Clauses 返回条件副本
func (p Predicate) Clauses() []Clause {
	out := make([]Clause, len(p.clauses))
	for i, c := range p.clauses {
		out[i] = Clause{Field: c.Field, Values: append([]string(nil), c.Values...)}
	}
	return out
}

// Values 返回某字段的允许取值；字段未受约束时 ok=false
func (p Predicate) Values(field string) ([]string, bool) {
	for _, c := range p.clauses {
		if c.Field == field {
			return append([]string(nil), c.Values...), true
		}
	}
	return nil, false
}

// Merge 取两个谓词的交集
func (p Predicate) Merge(other Predicate) Predicate {
	switch {
	case p.IsNone() || other.IsNone():
		return None()
	case p.IsAll():
		return other
	case other.IsAll():
		return p
	}

	merged := p.Clauses()
	for _, oc := range other.clauses {
		idx := -1
		for i := range merged {
			if merged[i].Field == oc.Field {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged = append(merged, Clause{Field: oc.Field, Values: append([]string(nil), oc.Values...)})
			continue
		}
		inter := intersect(merged[idx].Values, oc.Values)
		if len(inter) == 0 {
			return None()
		}
		merged[idx].Values = inter
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Field < merged[j].Field })
	return Predicate{kind: kindWhere, clauses: merged}
}

// Apply 将谓词合并进 gorm 查询
func (p Predicate) Apply(db *gorm.DB) *gorm.DB {
	return p.ApplyTo(db, "")
}

// ApplyTo 同 Apply，列名带表限定（用于 JOIN 查询）
func (p Predicate) ApplyTo(db *gorm.DB, table string) *gorm.DB {
	switch p.kind {
	case kindAll:
		return db
	case kindNone:
		return db.Where("1 = 0")
	}

	exprs := make([]clause.Expression, 0, len(p.clauses))
	for _, c := range p.clauses {
		values := make([]interface{}, len(c.Values))
		for i, v := range c.Values {
			values[i] = v
		}
		exprs = append(exprs, clause.IN{
			Column: clause.Column{Table: table, Name: c.Field},
			Values: values,
		})
	}
	return db.Clauses(clause.Where{Exprs: exprs})
}

// Matches 对内存中的记录求值
// record 缺少受约束字段时视为不匹配
func (p Predicate) Matches(record map[string]any) (bool, error) {
	switch p.kind {
	case kindAll:
		return true, nil
	case kindNone:
		return false, nil
	}

	env := make(map[string]any, len(record)+len(p.clauses))
	for k, v := range record {
		if v == nil {
			continue
		}
		env[k] = fmt.Sprint(v)
	}

	parts := make([]string, len(p.clauses))
	for i, c := range p.clauses {
		param := fmt.Sprintf("scope_values_%d", i)
		values := make([]any, len(c.Values))
		for j, v := range c.Values {
			values[j] = v
		}
		env[param] = values
		parts[i] = fmt.Sprintf("%s in %s", c.Field, param)
	}

	program, err := expr.Compile(strings.Join(parts, " && "), expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return false, fmt.Errorf("编译作用域谓词失败: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("执行作用域谓词失败: %w", err)
	}
	matched, ok := out.(bool)
	return ok && matched, nil
}

func (p Predicate) String() string {
	switch p.kind {
	case kindAll:
		return "TRUE"
	case kindNone:
		return "FALSE"
	}
	parts := make([]string, len(p.clauses))
	for i, c := range p.clauses {
		parts[i] = fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(c.Values, ","))
	}
	return strings.Join(parts, " AND ")
}

type predicateJSON struct {
	Kind    string   `json:"kind"` // all | none | where
	Clauses []Clause `json:"clauses,omitempty"`
}

// MarshalJSON 供 /scopes 接口返回给 CRUD 层
func (p Predicate) MarshalJSON() ([]byte, error) {
	out := predicateJSON{Kind: "none"}
	switch p.kind {
	case kindAll:
		out.Kind = "all"
	case kindWhere:
		out.Kind = "where"
		out.Clauses = p.Clauses()
	}
	return json.Marshal(out)
}

// ── 内部辅助 ──

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0)
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

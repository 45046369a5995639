package semester

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSemester 学期标识无法解析
var ErrInvalidSemester = errors.New("学期标识格式无效")

// Key 学期规范标识（半学年序号 + 学年起始年份）
// 同一学期的所有字符串写法都归一到同一个 Key，比较直接用 ==
type Key struct {
	Half int `json:"half"` // 1 | 2
	Year int `json:"year"` // 学年起始年份；0 表示只给出了学期序号
}

const (
	minYear = 1900
	maxYear = 9999
)

// New 创建完整的学期标识
func New(half, year int) (Key, error) {
	k := Key{Half: half, Year: year}
	if !k.Valid() || k.Partial() {
		return Key{}, fmt.Errorf("%w: half=%d year=%d", ErrInvalidSemester, half, year)
	}
	return k, nil
}

// MustNew 仅用于常量式初始化与测试
func MustNew(half, year int) Key {
	k, err := New(half, year)
	if err != nil {
		panic(err)
	}
	return k
}

// Valid 判断字段取值是否合法（允许 Partial）
func (k Key) Valid() bool {
	if k.Half != 1 && k.Half != 2 {
		return false
	}
	return k.Year == 0 || (k.Year >= minYear && k.Year <= maxYear)
}

// Partial 仅有学期序号、缺少年份
func (k Key) Partial() bool { return k.Year == 0 }

// Label 规范标签，例如 H1_2025；持久化记录以此为键
func (k Key) Label() string {
	if k.Partial() {
		return fmt.Sprintf("H%d", k.Half)
	}
	return fmt.Sprintf("H%d_%d", k.Half, k.Year)
}

func (k Key) String() string { return k.Label() }

// LegacyValue 旧系统使用的取值，例如 hoc_ky_1_2025
func (k Key) LegacyValue() string {
	if k.Partial() {
		return fmt.Sprintf("hoc_ky_%d", k.Half)
	}
	return fmt.Sprintf("hoc_ky_%d_%d", k.Half, k.Year)
}

// AcademicYear 学年标签，例如 2025-2026
func (k Key) AcademicYear() string {
	if k.Partial() {
		return ""
	}
	return fmt.Sprintf("%d-%d", k.Year, k.Year+1)
}

// YearFieldValues 记录中年份字段可能出现的写法：单一年份与学年区间
func (k Key) YearFieldValues() []string {
	if k.Partial() {
		return nil
	}
	return []string{strconv.Itoa(k.Year), k.AcademicYear()}
}

// CoversYearField 记录的年份字段能否推导为 k
// 异常区间只要覆盖 k 所在学年即视为归属 k，与写入守卫在 k 为活动学期时的推导一致
func (k Key) CoversYearField(yearField string) bool {
	if k.Partial() {
		return false
	}
	got, err := FromFields(k.Half, yearField, &k)
	return err == nil && got == k
}

// Next 下一个学期：H1 → 同学年 H2，H2 → 下一学年 H1
func (k Key) Next() Key {
	if k.Half == 1 {
		return Key{Half: 2, Year: k.Year}
	}
	return Key{Half: 1, Year: k.Year + 1}
}

// Prev 上一个学期
func (k Key) Prev() Key {
	if k.Half == 2 {
		return Key{Half: 1, Year: k.Year}
	}
	return Key{Half: 2, Year: k.Year - 1}
}

// DateRange 学期的自然日期窗口（闭区间）
// H1: 7/1 – 11/30；H2: 12/1 – 次年 4/30。5–6 月不属于任何学期窗口。
func (k Key) DateRange(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	if k.Half == 1 {
		start := time.Date(k.Year, time.July, 1, 0, 0, 0, 0, loc)
		end := time.Date(k.Year, time.November, 30, 23, 59, 59, 0, loc)
		return start, end
	}
	start := time.Date(k.Year, time.December, 1, 0, 0, 0, 0, loc)
	end := time.Date(k.Year+1, time.April, 30, 23, 59, 59, 0, loc)
	return start, end
}

// Contains 判断时间点是否落在学期窗口内
func (k Key) Contains(t time.Time) bool {
	if k.Partial() {
		return false
	}
	start, end := k.DateRange(t.Location())
	return !t.Before(start) && !t.After(end)
}

// ── 由日期推导 ──

// CurrentFromDate 根据日历月份推导学期
// 7–11 月 → 当年 H1；12 月 → 当年 H2；1–4 月 → 上一年 H2；5–6 月（暑假）默认当年 H1
func CurrentFromDate(t time.Time) Key {
	year := t.Year()
	switch m := t.Month(); {
	case m >= time.July && m <= time.November:
		return Key{Half: 1, Year: year}
	case m == time.December:
		return Key{Half: 2, Year: year}
	case m >= time.January && m <= time.April:
		return Key{Half: 2, Year: year - 1}
	default:
		return Key{Half: 1, Year: year}
	}
}

// ── 字符串解析 ──

// 已知格式（均在小写、去空白后匹配）：
//
//	v3 h1_2025 / h1-2025 / h1 2025 / h1/2025
//	v3 hk1_2025 / hk1-2025 / hk1 2025
//	v2 hoc_ky_1_2025
//	v1 hoc_ky_1-2025
//	v0 hoc_ky_12025（无分隔符）
var (
	fullPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^h([12])[_\-/ ](\d{4})$`),
		regexp.MustCompile(`^hk([12])[_\-/ ]?(\d{4})$`),
		regexp.MustCompile(`^hoc_ky_([12])[_\-]?(\d{4})$`),
	}
	halfPattern = regexp.MustCompile(`^(?:h|hk|hoc_ky_)?([12])$`)
)

// Parse 将任意已知写法解析为规范 Key
// 只有学期序号（H1 / HK1 / hoc_ky_1）时返回 Partial Key
func Parse(text string) (Key, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return Key{}, fmt.Errorf("%w: 空字符串", ErrInvalidSemester)
	}

	for _, re := range fullPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			half, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[2])
			return New(half, year)
		}
	}

	if m := halfPattern.FindStringSubmatch(s); m != nil && s != "1" && s != "2" {
		half, _ := strconv.Atoi(m[1])
		return Key{Half: half}, nil
	}

	return Key{}, fmt.Errorf("%w: %q", ErrInvalidSemester, text)
}

// ParseFull 同 Parse，但拒绝 Partial Key
func ParseFull(text string) (Key, error) {
	k, err := Parse(text)
	if err != nil {
		return Key{}, err
	}
	if k.Partial() {
		return Key{}, fmt.Errorf("%w: 缺少年份 %q", ErrInvalidSemester, text)
	}
	return k, nil
}

// ParseHalf 解析学期序号字段：1 / 2 / H1 / HK2 / hoc_ky_1
func ParseHalf(text string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if m := halfPattern.FindStringSubmatch(s); m != nil {
		half, _ := strconv.Atoi(m[1])
		return half, nil
	}
	return 0, fmt.Errorf("%w: 学期序号 %q", ErrInvalidSemester, text)
}

// Equal 两个字符串是否表示同一个完整学期
func Equal(a, b string) bool {
	ka, err := ParseFull(a)
	if err != nil {
		return false
	}
	kb, err := ParseFull(b)
	if err != nil {
		return false
	}
	return ka == kb
}

// ── 由记录字段推导 ──

var (
	singleYearRe = regexp.MustCompile(`^(\d{4})$`)
	yearRangeRe  = regexp.MustCompile(`^(\d{4})\s*[-/]\s*(\d{4})$`)
)

// FromFields 由记录中的学期序号与年份字段推导 Key
//
// yearField 支持单一年份 "2025" 与学年区间 "2025-2026"。
// 区间合法（相差 1 年）时取起始年份。区间异常时按其覆盖的学年推导：
// active 与 half 一致且 active 所在学年落在区间内时取 active，否则 H1 取第一个学年、H2 取最后一个学年。
// Year 始终是学年起始年份，推导结果的日期窗口不会超出区间。
func FromFields(half int, yearField string, active *Key) (Key, error) {
	if half != 1 && half != 2 {
		return Key{}, fmt.Errorf("%w: 学期序号 %d", ErrInvalidSemester, half)
	}
	field := strings.TrimSpace(yearField)

	if m := singleYearRe.FindStringSubmatch(field); m != nil {
		year, _ := strconv.Atoi(m[1])
		return New(half, year)
	}

	m := yearRangeRe.FindStringSubmatch(field)
	if m == nil {
		return Key{}, fmt.Errorf("%w: 年份字段 %q", ErrInvalidSemester, yearField)
	}
	y1, _ := strconv.Atoi(m[1])
	y2, _ := strconv.Atoi(m[2])

	if y2-y1 == 1 {
		return New(half, y1)
	}

	// 区间覆盖的学年起始年份为 [lo, last]
	lo, hi := y1, y2
	if lo > hi {
		lo, hi = hi, lo
	}
	last := hi - 1
	if last < lo {
		last = lo
	}

	if active != nil && !active.Partial() && active.Half == half &&
		active.Year >= lo && active.Year <= last {
		return New(half, active.Year)
	}

	if half == 1 {
		return New(half, lo)
	}
	return New(half, last)
}

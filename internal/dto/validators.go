package dto

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"activity-points/backend/pkg/semester"
)

const (
	semesterTag          = "semester"
	semesterOrCurrentTag = "semester_or_current"

	// CurrentSemester 请求中表示“当前活动学期”的别名
	CurrentSemester = "current"
)

// RegisterValidators 向 gin 的校验引擎注册自定义规则
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin 校验引擎不是 validator/v10")
	}
	if err := v.RegisterValidation(semesterTag, semesterValidation); err != nil {
		return err
	}
	return v.RegisterValidation(semesterOrCurrentTag, semesterOrCurrentValidation)
}

// semesterValidation 完整学期（含年份）
func semesterValidation(fl validator.FieldLevel) bool {
	_, err := semester.ParseFull(fl.Field().String())
	return err == nil
}

func semesterOrCurrentValidation(fl validator.FieldLevel) bool {
	if strings.EqualFold(strings.TrimSpace(fl.Field().String()), CurrentSemester) {
		return true
	}
	return semesterValidation(fl)
}

package middleware

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/fyerfyer/rag-dataset/internal/document"
)

var registerOnce sync.Once

// RegisterValidators 向gin的校验器注册自定义规则
// 导入参数的 binding 标签依赖这些规则，必须在绑定请求之前调用
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Warn("Gin validator engine is not go-playground/validator, custom rules skipped")
			return
		}
		if err := v.RegisterValidation("split_strategy", validateSplitStrategy); err != nil {
			log.WithError(err).Error("Failed to register split_strategy validator")
		}
	})
}

// validateSplitStrategy 分段策略必须是已知策略之一
func validateSplitStrategy(fl validator.FieldLevel) bool {
	_, err := document.ParseStrategy(fl.Field().String())
	return err == nil
}

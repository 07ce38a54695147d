// Package validator 将 ozzo-validation 的校验错误统一转换为 LayeredError
package validator

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/KOMKZ/go-yogan-eureka/errcode"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrValidation is the generic validation failure (module 1, code 1010).
var ErrValidation = errcode.Register(errcode.New(1, 1010, "common",
	"error.common.validation_failed", "validation failed", http.StatusBadRequest))

// Validatable 可校验接口
type Validatable interface {
	Validate() error
}

// Validate runs v.Validate and converts field errors into ErrValidation.
func Validate(v Validatable) error {
	return ValidateAs(v, ErrValidation)
}

// ValidateAs converts field errors into base. Non-ozzo errors pass through.
func ValidateAs(v Validatable, base *errcode.LayeredError) error {
	err := v.Validate()
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	return Convert(verrs, base)
}

// Convert 提取字段级错误（嵌套结构用点号展开，如 instance.app）
// 放入 data["fields"]，消息中列出全部字段
func Convert(verrs validation.Errors, base *errcode.LayeredError) *errcode.LayeredError {
	fields := make(map[string]string)
	flatten("", verrs, fields)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return base.WithMsgf("%s: %s", base.Message(), strings.Join(parts, "; ")).WithData("fields", fields)
}

func flatten(prefix string, verrs validation.Errors, out map[string]string) {
	for field, err := range verrs {
		if err == nil {
			continue
		}
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			flatten(key, nested, out)
			continue
		}
		out[key] = err.Error()
	}
}

// Package flagx 在 cobra flag 与请求结构体之间做双向绑定
package flagx

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var durationType = reflect.TypeOf(time.Duration(0))

// tagInfo 解析后的 flag 标签
type tagInfo struct {
	name     string
	short    string
	usage    string
	def      string
	required bool
}

func parseTag(f reflect.StructField) (tagInfo, bool) {
	raw := f.Tag.Get("flag")
	if raw == "" || raw == "-" {
		return tagInfo{}, false
	}
	parts := strings.Split(raw, ",")
	info := tagInfo{
		name:     parts[0],
		usage:    f.Tag.Get("usage"),
		def:      f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if len(parts) > 1 {
		info.short = parts[1]
	}
	return info, true
}

func structValue(target interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("target must be a pointer to struct")
	}
	return v.Elem(), nil
}

// BindFlags 按结构体标签注册 flag
//
//	type registerOptions struct {
//	    Status   string            `flag:"status,s" usage:"initial status" default:"UP"`
//	    Metadata map[string]string `flag:"metadata,m" usage:"metadata key=value"`
//	    Lease    time.Duration     `flag:"lease" default:"90s"`
//	}
//
//	var opts registerOptions
//	_ = flagx.BindFlags(cmd, &opts)
//
// 支持 string、int、uint、bool、float64、time.Duration、[]string、[]int、map[string]string
func BindFlags(cmd *cobra.Command, target interface{}) error {
	v, err := structValue(target)
	if err != nil {
		return err
	}
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !v.Field(i).CanSet() {
			continue
		}
		info, ok := parseTag(field)
		if !ok {
			continue
		}
		if err := registerFlag(cmd, field.Type, info); err != nil {
			return fmt.Errorf("bind field %s: %w", field.Name, err)
		}
		if info.required {
			if err := cmd.MarkFlagRequired(info.name); err != nil {
				return err
			}
		}
	}
	return nil
}

func registerFlag(cmd *cobra.Command, typ reflect.Type, info tagInfo) error {
	fs := cmd.Flags()
	if typ == durationType {
		var def time.Duration
		if info.def != "" {
			d, err := time.ParseDuration(info.def)
			if err != nil {
				return fmt.Errorf("invalid default %q: %w", info.def, err)
			}
			def = d
		}
		fs.DurationP(info.name, info.short, def, info.usage)
		return nil
	}

	switch typ.Kind() {
	case reflect.String:
		fs.StringP(info.name, info.short, info.def, info.usage)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		def, err := parseDefault(info.def, strconv.Atoi)
		if err != nil {
			return err
		}
		fs.IntP(info.name, info.short, def, info.usage)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		def, err := parseDefault(info.def, func(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) })
		if err != nil {
			return err
		}
		fs.UintP(info.name, info.short, uint(def), info.usage)

	case reflect.Bool:
		def, err := parseDefault(info.def, strconv.ParseBool)
		if err != nil {
			return err
		}
		fs.BoolP(info.name, info.short, def, info.usage)

	case reflect.Float32, reflect.Float64:
		def, err := parseDefault(info.def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
		if err != nil {
			return err
		}
		fs.Float64P(info.name, info.short, def, info.usage)

	case reflect.Slice:
		switch typ.Elem().Kind() {
		case reflect.String:
			fs.StringSliceP(info.name, info.short, nil, info.usage)
		case reflect.Int:
			fs.IntSliceP(info.name, info.short, nil, info.usage)
		default:
			return fmt.Errorf("unsupported slice element type: %s", typ.Elem().Kind())
		}

	case reflect.Map:
		if typ.Key().Kind() != reflect.String || typ.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported map type: %s", typ)
		}
		fs.StringToStringP(info.name, info.short, nil, info.usage)

	default:
		return fmt.Errorf("unsupported field type: %s", typ.Kind())
	}
	return nil
}

func parseDefault[T any](raw string, parse func(string) (T, error)) (T, error) {
	var zero T
	if raw == "" {
		return zero, nil
	}
	v, err := parse(raw)
	if err != nil {
		return zero, fmt.Errorf("invalid default %q: %w", raw, err)
	}
	return v, nil
}

// ParseFlags 把 cmd 上的 flag 值写回结构体（类似 gin 的 ShouldBind）
//
//	var opts registerOptions
//	if err := flagx.ParseFlags(cmd, &opts); err != nil {
//	    return err
//	}
//
// 结构体里声明但命令上不存在的 flag 返回错误
func ParseFlags(cmd *cobra.Command, target interface{}) error {
	v, err := structValue(target)
	if err != nil {
		return err
	}
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		info, ok := parseTag(t.Field(i))
		if !ok {
			continue
		}
		if err := setFieldValue(cmd, field, info.name); err != nil {
			return fmt.Errorf("parse field %s: %w", t.Field(i).Name, err)
		}
	}
	return nil
}

func setFieldValue(cmd *cobra.Command, field reflect.Value, name string) error {
	fs := cmd.Flags()
	if fs.Lookup(name) == nil {
		return fmt.Errorf("flag --%s not defined", name)
	}

	if field.Type() == durationType {
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		field.SetInt(int64(val))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		field.SetString(val)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		field.SetInt(int64(val))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		val, err := fs.GetUint(name)
		if err != nil {
			return err
		}
		field.SetUint(uint64(val))

	case reflect.Bool:
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		field.SetBool(val)

	case reflect.Float32, reflect.Float64:
		val, err := fs.GetFloat64(name)
		if err != nil {
			return err
		}
		field.SetFloat(val)

	case reflect.Slice:
		switch field.Type().Elem().Kind() {
		case reflect.String:
			val, err := fs.GetStringSlice(name)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(val))
		case reflect.Int:
			val, err := fs.GetIntSlice(name)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(val))
		default:
			return fmt.Errorf("unsupported slice element type: %s", field.Type().Elem().Kind())
		}

	case reflect.Map:
		val, err := fs.GetStringToString(name)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(val).Convert(field.Type()))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	durationType  = reflect.TypeOf(time.Duration(0))
	stringMapType = reflect.TypeOf(map[string]string(nil))
)

// MergeFromEnv overrides fields of cfg from environment variables named by
// their `env` struct tag. cfg must be a non-nil struct pointer. Nested
// structs are walked; unset or empty variables leave the field untouched.
//
// Besides scalars and durations, []string takes a comma separated list and
// map[string]string takes comma separated key=value pairs.
func MergeFromEnv(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config must be a non-nil struct pointer, got %T", cfg)
	}
	return mergeStruct(v.Elem())
}

func mergeStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			if err := mergeStruct(field); err != nil {
				return err
			}
			continue
		}

		envVar := t.Field(i).Tag.Get("env")
		if envVar == "" {
			continue
		}
		raw := os.Getenv(envVar)
		if raw == "" {
			continue
		}

		parsed, err := parseEnv(field.Type(), raw)
		if err != nil {
			return fmt.Errorf("%s (%s): %w", t.Field(i).Name, envVar, err)
		}
		field.Set(parsed)
	}
	return nil
}

func parseEnv(t reflect.Type, raw string) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	switch {
	case t == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return out, fmt.Errorf("invalid duration %q", raw)
		}
		out.SetInt(int64(d))

	case t == stringMapType:
		m := make(map[string]string)
		for _, pair := range splitList(raw) {
			k, val, ok := strings.Cut(pair, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return out, fmt.Errorf("invalid key=value pair %q", pair)
			}
			m[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
		out.Set(reflect.ValueOf(m))

	case t.Kind() == reflect.String:
		out.SetString(raw)

	case t.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return out, fmt.Errorf("invalid boolean %q", raw)
		}
		out.SetBool(b)

	case t.Kind() >= reflect.Int && t.Kind() <= reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, t.Bits())
		if err != nil {
			return out, fmt.Errorf("invalid integer %q", raw)
		}
		out.SetInt(n)

	case t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return out, fmt.Errorf("invalid float %q", raw)
		}
		out.SetFloat(f)

	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
		out.Set(reflect.ValueOf(splitList(raw)).Convert(t))

	default:
		return out, fmt.Errorf("unsupported type %s", t)
	}

	return out, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

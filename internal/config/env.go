package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv
type LookupFunc func(key string) (string, bool)

var durationType = reflect.TypeOf(time.Duration(0))

// ApplyEnv overwrites every field carrying an `env` tag whose variable is set.
// Slices are read as comma separated lists.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	return applyEnv(reflect.ValueOf(cfg).Elem(), lookup)
}

func applyEnv(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := v.Field(i)

		key := field.Tag.Get("env")
		if key == "" {
			if fv.Kind() == reflect.Struct && fv.Type() != durationType {
				if err := applyEnv(fv, lookup); err != nil {
					return err
				}
			}
			continue
		}

		raw, ok := lookup(key)
		if !ok || raw == "" {
			continue
		}
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint32:
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", fv.Type())
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}

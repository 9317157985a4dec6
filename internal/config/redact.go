package config

import "reflect"

// Redacted returns a copy of c with every field tagged secret:"true"
// masked. String maps are masked value by value so the keys stay visible.
func (c *Config) Redacted() *Config {
	out := *c
	redactStruct(reflect.ValueOf(&out).Elem())
	return &out
}

func redactStruct(v reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !t.Field(i).IsExported() {
			continue
		}
		if t.Field(i).Tag.Get("secret") != "true" {
			if f.Kind() == reflect.Struct {
				redactStruct(f)
			}
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(MaskSecret(f.String()))
		case reflect.Map:
			if f.IsNil() || f.Type().Elem().Kind() != reflect.String {
				continue
			}
			// Copy: the original map is shared with c.
			masked := reflect.MakeMapWithSize(f.Type(), f.Len())
			iter := f.MapRange()
			for iter.Next() {
				masked.SetMapIndex(iter.Key(), reflect.ValueOf(MaskSecret(iter.Value().String())).Convert(f.Type().Elem()))
			}
			f.Set(masked)
		}
	}
}

// MaskSecret keeps the first and last four characters of long values and
// hides short ones entirely.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 12:
		return s[:4] + "****" + s[len(s)-4:]
	default:
		return "****"
	}
}

package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Reader reads typed values from the process environment and collects every
// problem it meets, so a misconfigured deployment reports all of them at once.
type Reader struct {
	errs []error
}

func (r *Reader) fail(format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf(format, args...))
}

// Err returns the joined errors seen so far, or nil.
func (r *Reader) Err() error {
	return errors.Join(r.errs...)
}

func (r *Reader) Required(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		r.fail("missing env %s", k)
	}
	return v
}

func (r *Reader) String(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func (r *Reader) Int(k string, d int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail("env %s must be int", k)
		return d
	}
	return n
}

// PositiveInt is Int with an additional n > 0 constraint.
func (r *Reader) PositiveInt(k string, d int) int {
	n := r.Int(k, d)
	if n <= 0 {
		r.fail("env %s must be positive", k)
		return d
	}
	return n
}

func (r *Reader) Bool(k string, d bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	default:
		r.fail("env %s must be boolean", k)
		return d
	}
}

// List reads a comma-separated value. Empty items are dropped.
func (r *Reader) List(k string, d []string) []string {
	out := SplitList(os.Getenv(k))
	if len(out) == 0 {
		return d
	}
	return out
}

func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

package filters

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
)

// DefaultDateFormat is used when Date is called with an empty format.
const DefaultDateFormat = "YYYY-MM-DDTHH:mm:ssZ"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
}

// dateTokens is ordered longest first so that "MMMM" wins over "MM".
var dateTokens = []string{
	"YYYY", "YY",
	"MMMM", "MMM", "MM", "M",
	"DD", "D",
	"dddd", "ddd", "dd", "d",
	"HH", "H", "hh", "h",
	"mm", "m", "ss", "s", "SSS",
	"A", "a", "ZZ", "Z",
}

// Date formats v with a dayjs-style format string (YYYY, MM, DD, HH, mm…;
// text inside [brackets] is copied literally). v may be a time.Time, a
// date string in a common layout, or a unix timestamp in milliseconds.
func Date(v interface{}, format string) (string, error) {
	t, err := toTime(v)
	if err != nil {
		return "", err
	}
	if format == "" {
		format = DefaultDateFormat
	}
	return formatDate(t, format), nil
}

func toTime(v interface{}) (time.Time, error) {
	if isNilValue(v) {
		return time.Now(), nil
	}

	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		return *x, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return time.Time{}, siteerrors.NewConfigError(siteerrors.ErrCodeFilter, "date: unrecognised date "+strconv.Quote(x))
	}

	s := normalize(v)
	if s.cat == catNumber {
		return time.UnixMilli(int64(s.num)), nil
	}
	return time.Time{}, siteerrors.NewConfigError(siteerrors.ErrCodeFilter, fmt.Sprintf("date: cannot interpret %T as a date", v))
}

func formatDate(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '[' {
			if end := strings.IndexByte(format[i:], ']'); end > 0 {
				b.WriteString(format[i+1 : i+end])
				i += end + 1
				continue
			}
		}

		matched := false
		for _, tok := range dateTokens {
			if strings.HasPrefix(format[i:], tok) {
				b.WriteString(renderToken(t, tok))
				i += len(tok)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}
	return b.String()
}

func renderToken(t time.Time, tok string) string {
	switch tok {
	case "YYYY":
		return fmt.Sprintf("%04d", t.Year())
	case "YY":
		return fmt.Sprintf("%02d", t.Year()%100)
	case "MMMM":
		return t.Month().String()
	case "MMM":
		return t.Month().String()[:3]
	case "MM":
		return fmt.Sprintf("%02d", int(t.Month()))
	case "M":
		return strconv.Itoa(int(t.Month()))
	case "DD":
		return fmt.Sprintf("%02d", t.Day())
	case "D":
		return strconv.Itoa(t.Day())
	case "dddd":
		return t.Weekday().String()
	case "ddd":
		return t.Weekday().String()[:3]
	case "dd":
		return t.Weekday().String()[:2]
	case "d":
		return strconv.Itoa(int(t.Weekday()))
	case "HH":
		return fmt.Sprintf("%02d", t.Hour())
	case "H":
		return strconv.Itoa(t.Hour())
	case "hh":
		return fmt.Sprintf("%02d", hour12(t))
	case "h":
		return strconv.Itoa(hour12(t))
	case "mm":
		return fmt.Sprintf("%02d", t.Minute())
	case "m":
		return strconv.Itoa(t.Minute())
	case "ss":
		return fmt.Sprintf("%02d", t.Second())
	case "s":
		return strconv.Itoa(t.Second())
	case "SSS":
		return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	case "A":
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case "a":
		if t.Hour() < 12 {
			return "am"
		}
		return "pm"
	case "ZZ":
		return t.Format("-0700")
	case "Z":
		return t.Format("-07:00")
	}
	return tok
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}

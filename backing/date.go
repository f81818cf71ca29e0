package backing

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// dateLayouts are the text forms accepted for date columns.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	time.DateOnly,
	"2006-01-02 15:04:05.999999999-07:00",
}

// Date scans a date column from drivers that return time.Time, text, or
// unix seconds. NULL scans as the zero time; use Or for open-ended dates.
type Date struct {
	time.Time
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		d.Time = v.UTC()
		return nil
	case int64:
		d.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("backing: cannot scan %T into Date", src)
	}
}

func (d *Date) parse(s string) error {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("backing: unparseable date %q", s)
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) { return d.Time, nil }

// Or returns def when the scanned date is NULL.
func (d Date) Or(def time.Time) time.Time {
	if d.IsZero() {
		return def
	}
	return d.Time
}

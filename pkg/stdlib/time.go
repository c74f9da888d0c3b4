package stdlib

import (
	"time"

	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// registerTime installs the unix-timestamp clock, formatting/parsing
// helpers, and the year..second extractor family.
func registerTime(m *runtime.Manager) {
	register(m, "time.now", timeNow)
	register(m, "time.format", timeFormat)
	register(m, "time.parse", timeParse)
	register(m, "time.year", timeYear)
	register(m, "time.month", timeMonth)
	register(m, "time.day", timeDay)
	register(m, "time.hour", timeHour)
	register(m, "time.minute", timeMinute)
	register(m, "time.second", timeSecond)
}

func timeNow(h value.Handle) error {
	return pushInt(h, time.Now().Unix())
}

func timeFormat(h value.Handle) error {
	ts, err := argInt(h, 0)
	if err != nil {
		return err
	}
	format, err := argString(h, 1)
	if err != nil {
		return err
	}
	t := time.Unix(ts, 0).UTC()
	switch format {
	case "iso8601", "ISO8601", "rfc3339", "RFC3339":
		return pushString(h, t.Format(time.RFC3339))
	case "date":
		return pushString(h, t.Format("2006-01-02"))
	case "time":
		return pushString(h, t.Format("15:04:05"))
	case "datetime":
		return pushString(h, t.Format("2006-01-02 15:04:05"))
	default:
		return pushString(h, t.Format(format))
	}
}

func timeParse(h value.Handle) error {
	dateStr, err := argString(h, 0)
	if err != nil {
		return err
	}
	format, err := argString(h, 1)
	if err != nil {
		return err
	}

	var t time.Time
	switch format {
	case "iso8601", "ISO8601", "rfc3339", "RFC3339":
		t, err = time.Parse(time.RFC3339, dateStr)
	case "date":
		t, err = time.Parse("2006-01-02", dateStr)
	case "time":
		t, err = time.Parse("15:04:05", dateStr)
	case "datetime":
		t, err = time.Parse("2006-01-02 15:04:05", dateStr)
	default:
		t, err = time.Parse(format, dateStr)
	}
	if err != nil {
		return runtime.ArgumentError("failed to parse date: %v", err)
	}
	return pushInt(h, t.Unix())
}

func timeYear(h value.Handle) error {
	ts, err := argInt(h, 0)
	if err != nil {
		return err
	}
	return pushInt(h, int64(time.Unix(ts, 0).UTC().Year()))
}

func timeMonth(h value.Handle) error {
	ts, err := argInt(h, 0)
	if err != nil {
		return err
	}
	return pushInt(h, int64(time.Unix(ts, 0).UTC().Month()))
}

func timeDay(h value.Handle) error {
	ts, err := argInt(h, 0)
	if err != nil {
		return err
	}
	return pushInt(h, int64(time.Unix(ts, 0).UTC().Day()))
}

func timeHour(h value.Handle) error {
	ts, err := argInt(h, 0)
	if err != nil {
		return err
	}
	return pushInt(h, int64(time.Unix(ts, 0).UTC().Hour()))
}

func timeMinute(h value.Handle) error {
	ts, err := argInt(h, 0)
	if err != nil {
		return err
	}
	return pushInt(h, int64(time.Unix(ts, 0).UTC().Minute()))
}

func timeSecond(h value.Handle) error {
	ts, err := argInt(h, 0)
	if err != nil {
		return err
	}
	return pushInt(h, int64(time.Unix(ts, 0).UTC().Second()))
}

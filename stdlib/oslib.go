package stdlib

import (
	"time"

	"github.com/lollipopkit/lua54/state"
)

var startTime = time.Now()

// OpenOS installs the slice of os.* that makes sense for an embedded
// execution engine with no process-control surface: time/clock/date.
func OpenOS(th *state.Thread, globals *state.Table) {
	o := state.NewTable(0, 8)
	globals.Set("os", o)

	reg := func(name string, fn state.GoFunction) { o.Set(name, state.NewGoClosure("os."+name, fn)) }
	reg("time", osTime)
	reg("clock", osClock)
	reg("date", osDate)
	reg("difftime", osDiffTime)
}

func osTime(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{time.Now().Unix()}
}

func osClock(th *state.Thread, args []state.Value) []state.Value {
	return []state.Value{time.Since(startTime).Seconds()}
}

func osDate(th *state.Thread, args []state.Value) []state.Value {
	format := "%c"
	if s, ok := arg(args, 0).(string); ok {
		format = s
	}
	t := time.Now()
	if len(args) >= 2 {
		sec, _ := state.ToInteger(args[1])
		t = time.Unix(sec, 0)
	}
	utc := false
	if len(format) > 0 && format[0] == '!' {
		utc = true
		format = format[1:]
	}
	if utc {
		t = t.UTC()
	}
	if format == "*t" || format == "!*t" {
		tbl := state.NewTable(0, 8)
		tbl.Set("year", int64(t.Year()))
		tbl.Set("month", int64(t.Month()))
		tbl.Set("day", int64(t.Day()))
		tbl.Set("hour", int64(t.Hour()))
		tbl.Set("min", int64(t.Minute()))
		tbl.Set("sec", int64(t.Second()))
		tbl.Set("wday", int64(t.Weekday())+1)
		tbl.Set("yday", int64(t.YearDay()))
		tbl.Set("isdst", false)
		return []state.Value{tbl}
	}
	return []state.Value{t.Format("Mon Jan  2 15:04:05 2006")}
}

func osDiffTime(th *state.Thread, args []state.Value) []state.Value {
	t2, _ := state.ToFloat(arg(args, 0))
	t1, _ := state.ToFloat(arg(args, 1))
	return []state.Value{t2 - t1}
}

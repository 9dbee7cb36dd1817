package env

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// History operations and events the view acts on.
const (
	OpCheckin  = "checkin"
	OpMkBranch = "mkbranch"
	OpMkElem   = "mkelem"
	OpRmVer    = "rmver"

	EventCreateDirVersion = "create directory version"
	EventCreateVersion    = "create version"
	EventCreateBranch     = "create branch"
	EventDestroyVersion   = "destroy version on branch"
)

// History log framing: fields are separated by FieldDelimiter and records
// end with RecordEnd, so comments may span lines.
const (
	FieldDelimiter = "#--#"
	RecordEnd      = "###----###"
	DateLayout     = "20060102.150405"
)

// HistoryEvent is one recorded operation on an element.
type HistoryEvent struct {
	User            string
	Date            time.Time
	ObjectPath      string
	ObjectKind      string
	ObjectVersion   string
	Operation       string
	Event           string
	Comment         string
	PreviousVersion string
	Activity        string
}

// Seq returns the version number of the event, or -1.
func (e HistoryEvent) Seq() int {
	_, n, ok := ParseVersion(e.ObjectVersion)
	if !ok {
		return -1
	}
	return n
}

// Branch returns the branch path of the event version.
func (e HistoryEvent) Branch() string {
	b, _, _ := ParseVersion(e.ObjectVersion)
	return b
}

func (e HistoryEvent) IsDirectoryCheckin() bool {
	return e.Operation == OpCheckin && e.Event == EventCreateDirVersion
}

func (e HistoryEvent) IsFileCheckin() bool {
	return e.Operation == OpCheckin && e.Event == EventCreateVersion
}

func (e HistoryEvent) IsBranchCreation() bool {
	return e.Operation == OpMkBranch
}

func (e HistoryEvent) IsVersionRemoval() bool {
	return e.Operation == OpRmVer && e.Event == EventDestroyVersion
}

// RemovedVersion returns the version quoted in a removal comment, falling
// back to the object version.
func (e HistoryEvent) RemovedVersion() string {
	first, last := strings.IndexByte(e.Comment, '"'), strings.LastIndexByte(e.Comment, '"')
	if first >= 0 && first < last {
		return e.Comment[first+1 : last]
	}
	return e.ObjectVersion
}

func (e HistoryEvent) String() string {
	return fmt.Sprintf("%s %s@@%s %s %q", e.Date.Format(DateLayout), e.ObjectPath, e.ObjectVersion, e.Operation, e.Event)
}

// ParseHistoryLine reads one history record:
// user, date, object, kind, version, operation, event, comment[, activity].
// Removal records take their version from the comment.
func ParseHistoryLine(line string) (HistoryEvent, error) {
	line = strings.TrimSuffix(line, RecordEnd)
	f := strings.SplitN(line, FieldDelimiter, 9)
	if len(f) < 8 {
		return HistoryEvent{}, fmt.Errorf("history record: %d fields, want at least 8", len(f))
	}
	date, err := time.ParseInLocation(DateLayout, f[1], time.Local)
	if err != nil {
		return HistoryEvent{}, fmt.Errorf("history record: %w", err)
	}
	e := HistoryEvent{
		User:          f[0],
		Date:          date,
		ObjectPath:    f[2],
		ObjectKind:    f[3],
		ObjectVersion: f[4],
		Operation:     f[5],
		Event:         f[6],
		Comment:       f[7],
	}
	if len(f) == 9 {
		e.Activity = f[8]
	}
	if e.IsVersionRemoval() && e.RemovedVersion() != e.ObjectVersion {
		e.ObjectKind = "version"
		e.ObjectVersion = e.RemovedVersion()
	}
	return e, nil
}

// ReadHistory parses a history log, joining records that span lines.
// Records that cannot be parsed are skipped.
func ReadHistory(r io.Reader) ([]HistoryEvent, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []HistoryEvent
	var rec strings.Builder
	flush := func() {
		if rec.Len() == 0 {
			return
		}
		if e, err := ParseHistoryLine(rec.String()); err == nil {
			out = append(out, e)
		}
		rec.Reset()
	}
	for sc.Scan() {
		if rec.Len() > 0 {
			rec.WriteByte('\n')
		}
		rec.WriteString(sc.Text())
		if strings.HasSuffix(sc.Text(), RecordEnd) {
			flush()
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

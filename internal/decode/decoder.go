package decode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

const (
	// DefaultDuration is used when neither the cell nor the kind sets one.
	DefaultDuration = 30
	// DefaultDoctorAlphabet is the set of single-letter doctor codes.
	DefaultDoctorAlphabet = "ABCDE"
	maxNameRunes          = 30
)

// Options tunes a Decoder.
type Options struct {
	DoctorAlphabet string
	// Durations overrides the default slot length per kind, in minutes.
	Durations map[grid.Kind]int
}

// Decoder applies the cell rules in a fixed priority order.
type Decoder struct {
	alphabet  string
	durations map[grid.Kind]int
}

// NewDecoder returns a decoder with defaults applied.
func NewDecoder(opts Options) *Decoder {
	alphabet := strings.ToUpper(strings.TrimSpace(opts.DoctorAlphabet))
	if alphabet == "" {
		alphabet = DefaultDoctorAlphabet
	}
	durations := map[grid.Kind]int{
		grid.KindRF:         DefaultDuration,
		grid.KindManual:     DefaultDuration,
		grid.KindOutpatient: DefaultDuration,
	}
	for k, v := range opts.Durations {
		if v > 0 {
			durations[k] = v
		}
	}
	return &Decoder{alphabet: alphabet, durations: durations}
}

// CellContext is everything the decoder knows about a cell besides its text.
type CellContext struct {
	Kind     grid.Kind
	Tab      string
	Date     time.Time
	Time     string
	Resource string
	// Room is the ward room label from the row header.
	Room string
	Row  int
	Col  int
	Text string
}

// Outcome classifies what a cell produced.
type Outcome int

const (
	OutcomeEmpty Outcome = iota
	OutcomeNote
	OutcomeRecords
	OutcomeNothing
)

// Decoded is the result of decoding one cell.
type Decoded struct {
	Outcome Outcome
	Records []Record
}

// Decode classifies one cell. A *CellError is returned for non-empty cells no
// rule could interpret.
func (d *Decoder) Decode(c CellContext) (Decoded, error) {
	text := Canonical(c.Text)
	if isEmptySentinel(text) {
		return Decoded{Outcome: OutcomeEmpty}, nil
	}
	if c.Kind == grid.KindWard {
		return d.decodeWard(c, text)
	}
	if isNoteSentinel(text) {
		return Decoded{Outcome: OutcomeNote}, nil
	}

	env := d.envelope(c)
	b := Booking{Resource: c.Resource, Status: StatusBooked, DurationMins: d.durations[c.Kind]}

	if use := specialUse(text); use != SpecialNone {
		b.Status = StatusBlocked
		b.SpecialUse = use
		b.Note = text
		return d.emit(env, b), nil
	}
	if strings.Contains(text, "\n") {
		return d.decodeLines(c, env, b, Lines(text))
	}

	if status, ok := statusMarker(text); ok {
		b.Status = status
		return d.emit(env, b), nil
	}
	if rest, ok := stripCancel(text); ok {
		b.Status = StatusCancelled
		text = rest
		if text == "" {
			return d.emit(env, b), nil
		}
	}
	if b.Status != StatusCancelled && isAdmin(text) {
		b.Admin = true
		b.Status = StatusBlocked
		b.Note = text
		return d.emit(env, b), nil
	}

	if err := d.fillName(c, &b, text); err != nil {
		return Decoded{}, err
	}
	if b.Patient.RawName == "" {
		return Decoded{Outcome: OutcomeNothing}, nil
	}
	return d.emit(env, b), nil
}

// fillName peels the doctor code and subtype, then keeps what remains as the
// patient name.
func (d *Decoder) fillName(c CellContext, b *Booking, text string) error {
	code, rest := peelDoctor(text, d.alphabet)
	if code != "" {
		b.DoctorCode = code
	}
	rest, subtype, note := peelSubtype(rest)
	if subtype != SubtypeNone {
		b.Subtype = subtype
	}
	if note != "" {
		b.Note = joinNote(b.Note, note)
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}
	if !hasLetter(rest) {
		return newCellError(c, "no patient name")
	}
	if utf8.RuneCountInString(rest) > maxNameRunes {
		return newCellError(c, "name too long")
	}
	b.Patient.RawName = rest
	return nil
}

// decodeLines handles multi-line cells: chart numbers, doctor codes and
// durations each sit on their own line next to the name.
func (d *Decoder) decodeLines(c CellContext, env Envelope, b Booking, lines []string) (Decoded, error) {
	var nameLine string
	for _, line := range lines {
		switch {
		case chartPattern.MatchString(line) && b.Patient.ExternalID == "":
			b.Patient.ExternalID = line
		case doctorLine.MatchString(line):
			code := strings.ToUpper(doctorLine.FindStringSubmatch(line)[1])
			if strings.Contains(d.alphabet, code) {
				b.DoctorCode = code
			} else {
				b.Note = joinNote(b.Note, line)
			}
		case durationOf(line) > 0:
			b.DurationMins = durationOf(line)
		case procedural[line]:
		default:
			if status, ok := statusMarker(line); ok {
				b.Status = status
				continue
			}
			if rest, ok := stripCancel(line); ok {
				b.Status = StatusCancelled
				line = rest
				if line == "" {
					continue
				}
			}
			if nameLine == "" && b.Status != StatusCancelled && isAdmin(line) {
				b.Admin = true
				b.Status = StatusBlocked
				b.Note = joinNote(b.Note, line)
				continue
			}
			if nameLine == "" && !b.Admin {
				nameLine = line
			} else {
				b.Note = joinNote(b.Note, line)
			}
		}
	}
	if nameLine != "" {
		code := b.DoctorCode
		if err := d.fillName(c, &b, nameLine); err != nil {
			return Decoded{}, err
		}
		if code != "" {
			b.DoctorCode = code
		}
	}
	if b.Patient.RawName == "" && b.Patient.ExternalID == "" && b.Status == StatusBooked {
		return Decoded{}, newCellError(c, "multi-line cell has no patient")
	}
	return d.emit(env, b), nil
}

func (d *Decoder) envelope(c CellContext) Envelope {
	return Envelope{
		Kind:    c.Kind,
		Tab:     c.Tab,
		Date:    c.Date,
		Time:    c.Time,
		RawText: c.Text,
		Row:     c.Row,
		Col:     c.Col,
		Cell:    grid.CellName(c.Row, c.Col),
	}
}

func (d *Decoder) emit(env Envelope, b Booking) Decoded {
	if b.DurationMins <= 0 {
		b.DurationMins = DefaultDuration
	}
	if env.Time != "" {
		b.EndTime = AddMinutes(env.Time, b.DurationMins)
	}
	var rec Record
	switch env.Kind {
	case grid.KindRF:
		rec = &RfSlot{Envelope: env, Booking: b}
	case grid.KindManual:
		rec = &ManualSlot{Envelope: env, Booking: b}
	default:
		rec = &OutpatientAppointment{Envelope: env, Booking: b}
	}
	return Decoded{Outcome: OutcomeRecords, Records: []Record{rec}}
}

var (
	wardChart = regexp.MustCompile(`^(\d{3,10})\s*`)
	wardRange = regexp.MustCompile(`(\d{1,2}/\d{1,2})?\s*~\s*(\d{1,2}/\d{1,2})?`)
)

// decodeWard emits one record per non-empty line of a bed cell.
func (d *Decoder) decodeWard(c CellContext, text string) (Decoded, error) {
	bed := c.Resource
	if c.Room != "" {
		bed = c.Room + "-" + c.Resource
	}
	env := d.envelope(c)

	var out []Record
	for i, line := range Lines(text) {
		if isNoteSentinel(line) {
			continue
		}
		rec := &WardAdmissionLine{Envelope: env, BedKey: bed, LineIndex: i, Status: StatusBooked}
		if status, ok := statusMarker(line); ok {
			rec.Status = status
			out = append(out, rec)
			continue
		}
		if rest, ok := stripCancel(line); ok {
			rec.Status = StatusCancelled
			line = rest
		}
		if m := wardChart.FindStringSubmatch(line); m != nil {
			rec.Patient.ExternalID = m[1]
			line = strings.TrimSpace(line[len(m[0]):])
		}
		if m := wardRange.FindStringSubmatchIndex(line); m != nil {
			if m[2] >= 0 {
				rec.AdmitDate = monthDay(line[m[2]:m[3]], c.Date)
			}
			if m[4] >= 0 {
				rec.DischargeDate = monthDay(line[m[4]:m[5]], c.Date)
			}
			line = strings.TrimSpace(line[:m[0]] + " " + line[m[1]:])
		}
		if pm := parenSuffix.FindStringSubmatch(line); pm != nil {
			rec.Note = strings.TrimSpace(pm[2])
			line = strings.TrimSpace(pm[1])
		}
		if line != "" {
			if !hasLetter(line) {
				return Decoded{}, newCellError(c, fmt.Sprintf("line %d has no patient name", i+1))
			}
			rec.Patient.RawName = line
		}
		if rec.Patient.RawName == "" && rec.Patient.ExternalID == "" && rec.Status == StatusBooked {
			return Decoded{}, newCellError(c, fmt.Sprintf("line %d has no patient", i+1))
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return Decoded{Outcome: OutcomeNote}, nil
	}
	return Decoded{Outcome: OutcomeRecords, Records: out}, nil
}

func monthDay(text string, ref time.Time) time.Time {
	parts := strings.SplitN(text, "/", 2)
	if len(parts) != 2 {
		return time.Time{}
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}
	}
	year := ref.Year()
	if ref.IsZero() {
		year = time.Now().Year()
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}
	}
	return t
}

func durationOf(line string) int {
	if m := minutesPattern.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := hoursPattern.FindStringSubmatch(line); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins := 0
		if m[2] != "" {
			mins, _ = strconv.Atoi(m[2])
		}
		return h*60 + mins
	}
	return 0
}

// AddMinutes adds minutes to an "HH:MM" clock, wrapping past midnight.
func AddMinutes(clock string, minutes int) string {
	h, m, ok := splitClock(clock)
	if !ok {
		return ""
	}
	total := ((h*60+m+minutes)%(24*60) + 24*60) % (24 * 60)
	return grid.FormatClock(total/60, total%60)
}

func splitClock(clock string) (int, int, bool) {
	hs, ms, found := strings.Cut(clock, ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func joinNote(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

package decode

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	ltuPattern     = regexp.MustCompile(`(?i)^(?:in\s*/\s*)?ltu\s*\d*\s*!?$`)
	waitingPattern = regexp.MustCompile(`(?i)^in\s*\d*\s*!?$`)
	holdPattern    = regexp.MustCompile(`(?i)^w\s*\d*\s*!?$`)
	blockedPattern = regexp.MustCompile(`(?i)^(?:x|×|불가|마감|막음)$`)
	cancelPattern  = regexp.MustCompile(`^(?:\(?취소\)?|[xX×]\s)\s*`)
	bareTime       = regexp.MustCompile(`^\d{1,2}(?::\d{2}|\s*시(?:\s*\d{1,2}\s*분)?)$`)

	chartPattern    = regexp.MustCompile(`^\d{1,8}$`)
	doctorLine      = regexp.MustCompile(`^\(([A-Za-z])\)$`)
	minutesPattern  = regexp.MustCompile(`(?i)^(\d{1,3})\s*(?:분|min|m)$`)
	hoursPattern    = regexp.MustCompile(`^(\d)\s*시간(?:\s*(\d{1,2})\s*분)?$`)
	parenSuffix     = regexp.MustCompile(`^(.*?)\s*\(([^()]*)\)\s*$`)
	slashSuffix     = regexp.MustCompile(`^([^/]+?)\s*/\s*([^/]+)$`)
	emptyPattern    = regexp.MustCompile(`^[-‐‑–—―─ㅡ~·.]+$`)
	holidayWords    = []string{"휴무", "휴진", "공휴일", "연휴", "설날", "추석", "대체휴일"}
	notePrefixes    = []string{"※", "메모:", "메모 ", "memo:", "note:", "[공지]"}
	procedural      = map[string]bool{"초진": true, "재진": true, "신환": true, "예약": true, "확인": true, "재예약": true}
	adminExact      = map[string]bool{"회의": true, "교육": true, "행정": true, "서류": true, "점심": true, "휴게": true, "청소": true, "OFF": true}
	adminSubstrings = []string{"회의", "교육", "세미나", "행정업무", "차트정리", "보고서"}
)

// statusMarker recognises the bare status cells. LTU is checked first so that
// "IN/LTU" is never read as a waiting marker.
func statusMarker(text string) (Status, bool) {
	switch {
	case ltuPattern.MatchString(text):
		return StatusLongTermUnavailable, true
	case waitingPattern.MatchString(text):
		return StatusWaiting, true
	case holdPattern.MatchString(text):
		return StatusHold, true
	case blockedPattern.MatchString(text):
		return StatusBlocked, true
	default:
		return "", false
	}
}

func isEmptySentinel(text string) bool {
	return text == "" || emptyPattern.MatchString(text)
}

func isNoteSentinel(text string) bool {
	for _, w := range holidayWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, p := range notePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return bareTime.MatchString(text)
}

func isAdmin(text string) bool {
	if adminExact[strings.ToUpper(text)] {
		return true
	}
	for _, s := range adminSubstrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func specialUse(text string) SpecialUse {
	switch {
	case strings.Contains(text, "수액실"):
		return SpecialInfusion
	case strings.Contains(text, "장비"), strings.Contains(text, "기기"):
		return SpecialDevice
	case strings.Contains(text, "문의"):
		return SpecialInquiry
	default:
		return SpecialNone
	}
}

// stripCancel removes a leading cancel marker and reports whether one was found.
func stripCancel(text string) (string, bool) {
	loc := cancelPattern.FindStringIndex(text)
	if loc == nil {
		return text, false
	}
	return strings.TrimSpace(text[loc[1]:]), true
}

// peelDoctor removes a leading doctor code. The code must be followed by
// whitespace or a Hangul syllable so Latin names are left alone.
func peelDoctor(text, alphabet string) (string, string) {
	runes := []rune(text)
	if len(runes) < 2 {
		return "", text
	}
	code := unicode.ToUpper(runes[0])
	if !strings.ContainsRune(alphabet, code) {
		return "", text
	}
	next := runes[1]
	if !unicode.IsSpace(next) && !unicode.Is(unicode.Hangul, next) {
		return "", text
	}
	return string(code), strings.TrimSpace(string(runes[1:]))
}

type subtypeKeyword struct {
	word    string
	subtype Subtype
}

var (
	compoundSubtypes = []struct {
		words   []string
		subtype Subtype
	}{
		{[]string{"온", "냉"}, SubtypeContrast},
		{[]string{"온", "전기"}, SubtypeHeatElectric},
	}
	exactSubtypes = map[string]Subtype{
		"온":    SubtypeHeat,
		"온열":   SubtypeHeat,
		"핫팩":   SubtypeHeat,
		"냉":    SubtypeCold,
		"냉각":   SubtypeCold,
		"전기":   SubtypeElectric,
		"도수":   SubtypeManual,
		"견인":   SubtypeTraction,
		"초음파":  SubtypeUltrasound,
		"충격파":  SubtypeShockwave,
		"체외충격파": SubtypeShockwave,
	}
	substringSubtypes = sortedKeywords(exactSubtypes)
)

func sortedKeywords(m map[string]Subtype) []subtypeKeyword {
	out := make([]subtypeKeyword, 0, len(m))
	for w, s := range m {
		out = append(out, subtypeKeyword{w, s})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].word) != len(out[j].word) {
			return len(out[i].word) > len(out[j].word)
		}
		return out[i].word < out[j].word
	})
	return out
}

// classifySubtype maps an annotation to a subtype. Compound conditions win
// over exact matches, which win over substring matches.
func classifySubtype(annotation string) (Subtype, bool) {
	key := strings.NewReplacer(" ", "", "+", "", ",", "", "·", "").Replace(annotation)
	if key == "" {
		return SubtypeNone, false
	}
	for _, c := range compoundSubtypes {
		all := true
		for _, w := range c.words {
			if !strings.Contains(key, w) {
				all = false
				break
			}
		}
		if all {
			return c.subtype, true
		}
	}
	if s, ok := exactSubtypes[key]; ok {
		return s, true
	}
	for _, kw := range substringSubtypes {
		if strings.Contains(key, kw.word) {
			return kw.subtype, true
		}
	}
	return SubtypeNone, false
}

// peelSubtype removes a trailing "(...)" or "/..." annotation. Unclassified
// annotations come back as a note.
func peelSubtype(text string) (rest string, subtype Subtype, note string) {
	if m := parenSuffix.FindStringSubmatch(text); m != nil {
		if s, ok := classifySubtype(m[2]); ok {
			return strings.TrimSpace(m[1]), s, ""
		}
		return strings.TrimSpace(m[1]), SubtypeNone, strings.TrimSpace(m[2])
	}
	if m := slashSuffix.FindStringSubmatch(text); m != nil {
		if s, ok := classifySubtype(m[2]); ok {
			return strings.TrimSpace(m[1]), s, ""
		}
	}
	return text, SubtypeNone, ""
}

func hasLetter(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

package safety

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"consultdoc/internal/knowledge"
)

const dosesPerBox = 30

var (
	numberRe   = regexp.MustCompile(`(\d+)`)
	durationRe = regexp.MustCompile(`(\d+|une?|one|a)\s*(jours?|j\b|days?|d\b|semaines?|sem\b|weeks?|wk|mois|months?)`)
	everyRe    = regexp.MustCompile(`(?:toutes les|every|q)\s*(\d+)\s*(?:h\b|heures?|hours?|hrs?)`)
	timesRe    = regexp.MustCompile(`(\d+)\s*(?:x|fois|times?)\b`)
	perDayRe   = regexp.MustCompile(`(\d+)\s*/\s*(?:j|jour|day|d)\b`)
)

// ParseDays reads a treatment duration ("7 jours", "2 weeks", "1 mois") as days; 0 if unknown.
func ParseDays(s string) int {
	f := knowledge.Fold(s)
	if m := durationRe.FindStringSubmatch(f); m != nil {
		n := wordNumber(m[1])
		switch {
		case strings.HasPrefix(m[2], "sem") || strings.HasPrefix(m[2], "week") || m[2] == "wk":
			return n * 7
		case strings.HasPrefix(m[2], "mois") || strings.HasPrefix(m[2], "month"):
			return n * 30
		default:
			return n
		}
	}
	if m := numberRe.FindStringSubmatch(f); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// ParsePerDay reads a frequency ("3 fois par jour", "every 8 hours", "bid") as doses per day; 0 if unknown.
func ParsePerDay(s string) int {
	f := knowledge.Fold(s)
	if f == "" {
		return 0
	}
	if m := everyRe.FindStringSubmatch(f); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h > 0 && h <= 24 {
			return 24 / h
		}
	}
	if m := timesRe.FindStringSubmatch(f); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := perDayRe.FindStringSubmatch(f); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	switch {
	case strings.Contains(f, "qid"):
		return 4
	case strings.Contains(f, "tid"), strings.Contains(f, "thrice"), strings.Contains(f, "matin, midi et soir"),
		strings.Contains(f, "matin midi et soir"):
		return 3
	case strings.Contains(f, "bid"), strings.Contains(f, "twice"), strings.Contains(f, "matin et soir"):
		return 2
	case strings.Contains(f, "once"), strings.Contains(f, "une fois"), strings.Contains(f, "qd"),
		strings.Contains(f, "daily"), strings.Contains(f, "par jour"), strings.Contains(f, "/j"):
		return 1
	}
	return 0
}

// Quantity turns duration and frequency into a box count. Unparseable input yields one box.
func Quantity(duration, frequency string) string {
	doses := ParseDays(duration) * ParsePerDay(frequency)
	return Boxes(doses)
}

func Boxes(doses int) string {
	var n int
	switch {
	case doses <= 30:
		n = 1
	case doses <= 60:
		n = 2
	case doses <= 90:
		n = 3
	default:
		n = (doses + dosesPerBox - 1) / dosesPerBox
	}
	if n == 1 {
		return "1 box"
	}
	return fmt.Sprintf("%d boxes", n)
}

func wordNumber(s string) int {
	switch s {
	case "un", "une", "one", "a":
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

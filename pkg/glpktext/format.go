package glpktext

import "regexp"

// numRangeRegexp matches GLPK's "{a..b}" / "{a..b by step}" shorthand.
var numRangeRegexp = regexp.MustCompile(`\{ *([0-9]+) *\.\. *([0-9]+) *(by *([0-9]+) *)?\}`)

// ExpandNumSet rewrites every "{1..10}" into "{1,2,...,10}" and every
// "{1..9 by 2}" into "{1,3,5,7,9}", the two numeric-range shorthands GLPK
// accepts but glpsol's own display output never produces — so emitted
// model/data text must expand them before being handed to the solver.
func ExpandNumSet(txt string) string {
	idx := 0
	var buf []byte
	for _, loc := range numRangeRegexp.FindAllStringSubmatchIndex(txt, -1) {
		buf = append(buf, txt[idx:loc[2]]...)
		start := atoiMust(txt[loc[2]:loc[3]])
		end := atoiMust(txt[loc[4]:loc[5]])
		step := 1
		if loc[8] >= 0 {
			step = atoiMust(txt[loc[8]:loc[9]])
		}
		buf = appendInt(buf, start)
		for i := start + step; i <= end; i += step {
			buf = append(buf, ',')
			buf = appendInt(buf, i)
		}
		buf = append(buf, '}')
		idx = loc[1]
	}
	if idx == 0 {
		return txt
	}
	buf = append(buf, txt[idx:]...)
	return string(buf)
}

func atoiMust(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func appendInt(buf []byte, n int) []byte {
	if n == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	// reverse the digits just appended
	for l, r := start, len(buf)-1; l < r; l, r = l+1, r-1 {
		buf[l], buf[r] = buf[r], buf[l]
	}
	return buf
}

var (
	assignSpaceRegexp  = regexp.MustCompile(` *:= *`)
	commaSpaceRegexp   = regexp.MustCompile(`, *`)
	opSpaceRegexp      = regexp.MustCompile(` *([<>&:=+*/-]+) *`)
	openParenRegexp    = regexp.MustCompile(`\( +`)
	closeParenRegexp   = regexp.MustCompile(` +\)`)
	semicolonRegexp    = regexp.MustCompile(`; *`)
	closeBraceColon    = regexp.MustCompile(`\} *: *`)
	bracketSpaceRegexp = regexp.MustCompile(` +\[`)
	stRegexp           = regexp.MustCompile(`s\. *t\. *`)
	nonWordRegexp      = regexp.MustCompile(`[^\w]`)
)

// Format normalizes whitespace around GLPK punctuation and breaks the text
// onto one statement per line after each semicolon, matching the layout
// glpsol's own `--wglp`/display output uses.
func Format(txt string) string {
	txt = assignSpaceRegexp.ReplaceAllString(txt, " := ")
	txt = commaSpaceRegexp.ReplaceAllString(txt, ", ")
	txt = opSpaceRegexp.ReplaceAllString(txt, " $1 ")
	txt = openParenRegexp.ReplaceAllString(txt, "(")
	txt = closeParenRegexp.ReplaceAllString(txt, ")")
	txt = semicolonRegexp.ReplaceAllString(txt, ";\n")
	txt = closeBraceColon.ReplaceAllString(txt, "} : ")
	txt = bracketSpaceRegexp.ReplaceAllString(txt, "[")
	return txt
}

// FormatModel runs Format plus the AC-builder-specific cleanups: numeric
// range expansion and rewriting every "s.t." token as "# s.t. ".
func FormatModel(txt string) string {
	txt = ExpandNumSet(txt)
	txt = Format(txt)
	txt = stRegexp.ReplaceAllString(txt, "# s.t. ")
	return txt
}

// Escape replaces every non-word rune with an underscore, the convention
// used to turn a free-form device model name into a filesystem- and
// GLPK-identifier-safe token.
func Escape(txt string) string {
	return nonWordRegexp.ReplaceAllString(txt, "_")
}

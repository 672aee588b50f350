package stdlib

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/types"
)

// registerText registers string helpers and the text.* family.
func (r *Registry) registerText() {
	r.Register("lower", Pure(textLower))
	r.Register("upper", Pure(textUpper))
	r.Register("trim", Pure(textTrim))
	r.Register("strip", Pure(textTrim))
	r.Register("split", Pure(textSplit))
	r.Register("replace", Pure(textReplace))
	r.Register("startswith", Pure(textStartsWith))
	r.Register("endswith", Pure(textEndsWith))
	r.Register("capitalize", Pure(textCapitalize))
	r.Register("title", Pure(textTitle))
	r.Register("truncate", Pure(textTruncate))
	r.Register("indent", Pure(textIndent))
	r.Register("pluralize", Pure(textPluralize))

	r.Register("text.find_all", Pure(textFindAll))
	r.Register("text.find_all_regex", Pure(textFindAllRegex))
	r.Register("text.match_regex", Pure(textMatchRegex))
	r.Register("text.replace_all", Pure(textReplace))
	r.Register("text.replace_all_regex", Pure(textReplaceAllRegex))
	r.Register("text.split", Pure(textSplit))
	r.Register("text.substring", Pure(textSubstring))
	r.Register("text.to_lower", Pure(textLower))
	r.Register("text.to_upper", Pure(textUpper))
}

func textLower(args []types.Value) types.Value {
	return types.NewString(strings.ToLower(strArg(args, 0, "")))
}

func textUpper(args []types.Value) types.Value {
	return types.NewString(strings.ToUpper(strArg(args, 0, "")))
}

// textTrim strips whitespace, or the given cutset.
func textTrim(args []types.Value) types.Value {
	s := strArg(args, 0, "")
	if cutset := strArg(args, 1, ""); cutset != "" {
		return types.NewString(strings.Trim(s, cutset))
	}
	return types.NewString(strings.TrimSpace(s))
}

// textSplit splits on a separator, or on runs of whitespace when none is given.
func textSplit(args []types.Value) types.Value {
	s := strArg(args, 0, "")
	var parts []string
	if sep := strArg(args, 1, ""); sep != "" {
		parts = strings.Split(s, sep)
	} else {
		parts = strings.Fields(s)
	}
	return types.FromGo(parts)
}

func textReplace(args []types.Value) types.Value {
	if len(args) < 3 {
		return types.Undefined
	}
	return types.NewString(strings.ReplaceAll(args[0].String(), args[1].String(), args[2].String()))
}

func textStartsWith(args []types.Value) types.Value {
	return types.NewBool(strings.HasPrefix(strArg(args, 0, ""), strArg(args, 1, "")))
}

func textEndsWith(args []types.Value) types.Value {
	return types.NewBool(strings.HasSuffix(strArg(args, 0, ""), strArg(args, 1, "")))
}

// textCapitalize upper-cases the first letter and lower-cases the rest.
func textCapitalize(args []types.Value) types.Value {
	runes := []rune(strings.ToLower(strArg(args, 0, "")))
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return types.NewString(string(runes))
}

func textTitle(args []types.Value) types.Value {
	return types.NewString(cases.Title(language.Und).String(strArg(args, 0, "")))
}

// textTruncate shortens s to n runes, appending the suffix ("..." by default)
// when anything was cut. The suffix counts toward n.
func textTruncate(args []types.Value) types.Value {
	s := strArg(args, 0, "")
	n := intArg(args, 1, 255)
	suffix := strArg(args, 2, "...")
	runes := []rune(s)
	if n < 0 || len(runes) <= n {
		return types.NewString(s)
	}
	keep := n - len([]rune(suffix))
	if keep < 0 {
		keep = 0
	}
	return types.NewString(strings.TrimRightFunc(string(runes[:keep]), unicode.IsSpace) + suffix)
}

// MaxIndentWidth caps the padding indent() and to_json() will build.
const MaxIndentWidth = 256

// textIndent prefixes every non-blank line after the first with n spaces
// (or the given string); a truthy third argument indents the first line too.
// Widths above MaxIndentWidth give undefined.
func textIndent(args []types.Value) types.Value {
	s := strArg(args, 0, "")
	width := intArg(args, 1, 2)
	if width > MaxIndentWidth {
		return types.Undefined
	}
	if width < 0 {
		width = 0
	}
	pad := strings.Repeat(" ", width)
	if w := arg(args, 1); w.Type() == types.TypeString && math.IsNaN(w.ToNumber()) {
		pad = w.AsString()
	}
	first := arg(args, 2).Truthy()
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if (i == 0 && !first) || strings.TrimSpace(line) == "" {
			continue
		}
		lines[i] = pad + line
	}
	return types.NewString(strings.Join(lines, "\n"))
}

// textPluralize picks the singular form for a count of exactly 1 and the
// plural form (singular + "s" unless given) otherwise.
func textPluralize(args []types.Value) types.Value {
	singular := strArg(args, 1, "")
	if arg(args, 0).ToNumber() == 1 {
		return types.NewString(singular)
	}
	return types.NewString(strArg(args, 2, singular+"s"))
}

func matchRecord(index int, match string) types.Value {
	m := types.NewOrderedMap()
	m.Set("index", types.NewInt(index))
	m.Set("match", types.NewString(match))
	return types.NewMap(m)
}

func textFindAll(args []types.Value) types.Value {
	source, substr := strArg(args, 0, ""), strArg(args, 1, "")
	results := []types.Value{}
	if substr == "" {
		return types.NewList(results)
	}
	start := 0
	for {
		idx := strings.Index(source[start:], substr)
		if idx == -1 {
			break
		}
		results = append(results, matchRecord(start+idx, substr))
		start += idx + 1
	}
	return types.NewList(results)
}

func textFindAllRegex(args []types.Value) types.Value {
	re, err := regexp.Compile(strArg(args, 1, ""))
	if err != nil {
		return types.Undefined
	}
	source := strArg(args, 0, "")
	matches := re.FindAllStringIndex(source, -1)
	result := make([]types.Value, len(matches))
	for i, m := range matches {
		result[i] = matchRecord(m[0], source[m[0]:m[1]])
	}
	return types.NewList(result)
}

// textMatchRegex reports whether the whole source matches the pattern.
func textMatchRegex(args []types.Value) types.Value {
	re, err := regexp.Compile("^(?:" + strArg(args, 1, "") + ")$")
	if err != nil {
		return types.Undefined
	}
	return types.NewBool(re.MatchString(strArg(args, 0, "")))
}

func textReplaceAllRegex(args []types.Value) types.Value {
	re, err := regexp.Compile(strArg(args, 1, ""))
	if err != nil {
		return types.Undefined
	}
	return types.NewString(re.ReplaceAllString(strArg(args, 0, ""), strArg(args, 2, "")))
}

// textSubstring returns runes [start, end), clamped to the string.
func textSubstring(args []types.Value) types.Value {
	runes := []rune(strArg(args, 0, ""))
	start := intArg(args, 1, 0)
	end := intArg(args, 2, len(runes))
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start > end {
		return types.NewString("")
	}
	return types.NewString(string(runes[start:end]))
}

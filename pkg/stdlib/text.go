package stdlib

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xnlogical/via/pkg/runtime"
	"github.com/xnlogical/via/pkg/value"
)

// registerText installs the string and regex foreign functions.
func registerText(m *runtime.Manager) {
	register(m, "str.upper", strUpper)
	register(m, "str.lower", strLower)
	register(m, "str.trim", strTrim)
	register(m, "str.split", strSplit)
	register(m, "str.contains", strContains)
	register(m, "str.match", strMatch)
	register(m, "str.find_all", strFindAll)
	register(m, "str.replace", strReplace)
	register(m, "str.is_space", strIsSpace)
}

func strUpper(h value.Handle) error {
	s, err := argString(h, 0)
	if err != nil {
		return err
	}
	return pushString(h, strings.ToUpper(s))
}

func strLower(h value.Handle) error {
	s, err := argString(h, 0)
	if err != nil {
		return err
	}
	return pushString(h, strings.ToLower(s))
}

func strTrim(h value.Handle) error {
	s, err := argString(h, 0)
	if err != nil {
		return err
	}
	return pushString(h, strings.TrimSpace(s))
}

// strSplit splits s on sep, returning a table with the parts in the
// array part (Entries()-compatible, per stdlib.go's pushStringArray).
func strSplit(h value.Handle) error {
	s, err := argString(h, 0)
	if err != nil {
		return err
	}
	sep, err := argString(h, 1)
	if err != nil {
		return err
	}
	return pushStringArray(h, strings.Split(s, sep))
}

func strContains(h value.Handle) error {
	s, err := argString(h, 0)
	if err != nil {
		return err
	}
	substr, err := argString(h, 1)
	if err != nil {
		return err
	}
	return pushBool(h, strings.Contains(s, substr))
}

// strMatch reports whether pattern matches text.
func strMatch(h value.Handle) error {
	pattern, err := argString(h, 0)
	if err != nil {
		return err
	}
	text, err := argString(h, 1)
	if err != nil {
		return err
	}
	matched, err := regexp.MatchString(pattern, text)
	if err != nil {
		return runtime.ArgumentError("invalid regex pattern: %v", err)
	}
	return pushBool(h, matched)
}

// strFindAll finds every match of pattern in text.
func strFindAll(h value.Handle) error {
	pattern, err := argString(h, 0)
	if err != nil {
		return err
	}
	text, err := argString(h, 1)
	if err != nil {
		return err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return runtime.ArgumentError("invalid regex pattern: %v", err)
	}
	return pushStringArray(h, re.FindAllString(text, -1))
}

// strReplace replaces every match of pattern in text.
func strReplace(h value.Handle) error {
	pattern, err := argString(h, 0)
	if err != nil {
		return err
	}
	text, err := argString(h, 1)
	if err != nil {
		return err
	}
	replacement, err := argString(h, 2)
	if err != nil {
		return err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return runtime.ArgumentError("invalid regex pattern: %v", err)
	}
	return pushString(h, re.ReplaceAllString(text, replacement))
}

func strIsSpace(h value.Handle) error {
	s, err := argString(h, 0)
	if err != nil {
		return err
	}
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return pushBool(h, false)
		}
	}
	return pushBool(h, true)
}

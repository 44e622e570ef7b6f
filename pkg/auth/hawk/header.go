package hawk

import (
	"regexp"
	"strings"
)

var (
	headerSyntax   = regexp.MustCompile(`^(\w+)(?:\s+(.*))?$`)
	attributeRe    = regexp.MustCompile(`(\w+)="([^"\\]*)"\s*(?:,\s*|$)`)
	attributeValue = regexp.MustCompile(`^[ \w!#$%&'()*+,\-./:;<=>?@\[\]^` + "`" + `{|}~]+$`)
)

var headerKeys = map[string]bool{
	"id": true, "ts": true, "nonce": true, "hash": true,
	"ext": true, "mac": true, "app": true, "dlg": true,
}

// headerError is a structural problem with an Authorization header. An
// empty message means the header uses another scheme.
type headerError struct {
	message string
}

// parseHeader checks the syntax of a Hawk Authorization header and returns
// it with a canonical "Hawk" scheme prefix.
func parseHeader(header string) (string, map[string]string, *headerError) {
	m := headerSyntax.FindStringSubmatch(header)
	if m == nil {
		return "", nil, &headerError{message: "Invalid header syntax"}
	}
	if !strings.EqualFold(m[1], "hawk") {
		return "", nil, &headerError{}
	}
	rest := m[2]
	if rest == "" {
		return "", nil, &headerError{message: "Invalid header syntax"}
	}

	attrs := make(map[string]string)
	var problem string
	leftover := attributeRe.ReplaceAllStringFunc(rest, func(match string) string {
		sub := attributeRe.FindStringSubmatch(match)
		key, value := sub[1], sub[2]
		switch {
		case !headerKeys[key]:
			problem = "Unknown attribute: " + key
			return match
		case !attributeValue.MatchString(value):
			problem = "Bad attribute value: " + key
			return match
		case attrs[key] != "":
			problem = "Duplicate attribute: " + key
			return match
		}
		attrs[key] = value
		return ""
	})
	if leftover != "" {
		if problem == "" {
			problem = "Bad header format"
		}
		return "", nil, &headerError{message: problem}
	}

	if attrs["id"] == "" || attrs["ts"] == "" || attrs["nonce"] == "" || attrs["mac"] == "" {
		return "", nil, &headerError{message: "Missing attributes"}
	}
	return "Hawk " + rest, attrs, nil
}

package hawk

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	hawklib "github.com/tent/hawk-go"

	"github.com/rhuss/hawkgate/pkg/auth"
)

// bewit is the decoded form of a bewit token: id\exp\mac\ext.
type bewit struct {
	id      string
	expires time.Time
	mac     string
	ext     string
}

// parseBewit decodes and structurally validates a bewit. It does not check
// the MAC.
func parseBewit(value string) (*bewit, *auth.MalformedRequest) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		o := auth.BadRequest("Invalid bewit structure")
		return nil, &o
	}

	parts := strings.Split(string(raw), `\`)
	if len(parts) != 4 {
		o := auth.BadRequest("Invalid bewit structure")
		return nil, &o
	}
	if parts[0] == "" || parts[1] == "" || parts[2] == "" {
		o := auth.BadRequest("Missing bewit attributes")
		return nil, &o
	}

	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		o := auth.BadRequest("Invalid bewit structure")
		return nil, &o
	}

	return &bewit{
		id:      parts[0],
		expires: time.Unix(exp, 0),
		mac:     parts[2],
		ext:     parts[3],
	}, nil
}

// Mint returns a bewit granting GET access to rawURL for ttl, which must be
// a positive whole number of seconds. The token is bound to the exact URL,
// including host and port. Append it to the URL as the auth.TokenKey query
// parameter.
func Mint(creds *auth.Credentials, rawURL string, ttl time.Duration, ext string) (string, error) {
	if creds == nil || creds.ID == "" || creds.Key == "" {
		return "", auth.ErrInvalidCredentials
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", auth.ErrInvalidURL, rawURL)
	}
	if ttl <= 0 || ttl%time.Second != 0 {
		return "", fmt.Errorf("%w: %s", auth.ErrInvalidTTL, ttl)
	}
	if strings.Contains(ext, `\`) {
		return "", auth.ErrInvalidExt
	}
	hf, err := HashFunc(creds.Algorithm)
	if err != nil {
		return "", err
	}

	h, err := hawklib.NewURLAuth(rawURL, &hawklib.Credentials{
		ID:   creds.ID,
		Key:  creds.Key,
		Hash: hf,
	}, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrInvalidURL, err)
	}
	h.Ext = ext
	return h.Bewit(), nil
}

// AppendBewit returns rawURL with the bewit added as the auth.TokenKey
// query parameter.
func AppendBewit(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrInvalidURL, err)
	}
	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	return rawURL + sep + auth.TokenKey + "=" + token, nil
}

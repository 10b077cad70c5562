package api

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// URI identifies a resource. It marshals to and from its string form.
// The zero value is not a valid URI.
type URI struct {
	Scheme    string
	Authority string
	Path      string
	Query     string
	Fragment  string
}

// FileURI returns a file URI for the local path p.
func FileURI(p string) URI {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return URI{Scheme: "file", Path: p}
}

// ParseURI parses s. Strings without a scheme are treated as file paths.
func ParseURI(s string) (URI, error) {
	if s == "" {
		return URI{}, invalid("empty uri")
	}
	u, err := url.Parse(s)
	if err != nil {
		return URI{}, invalid("parse uri %q: %v", s, err)
	}
	// A one-letter scheme is a Windows drive letter.
	if len(u.Scheme) <= 1 {
		return FileURI(s), nil
	}
	p := u.Path
	if u.Opaque != "" {
		p = u.Opaque
	}
	return URI{
		Scheme:    u.Scheme,
		Authority: u.Host,
		Path:      p,
		Query:     u.RawQuery,
		Fragment:  u.Fragment,
	}, nil
}

// IsZero reports whether u is the zero URI.
func (u URI) IsZero() bool { return u == URI{} }

// FSPath returns the local filesystem path for file URIs and the raw path
// otherwise.
func (u URI) FSPath() string {
	if u.Scheme != "file" {
		return u.Path
	}
	return filepath.FromSlash(u.Path)
}

// JoinPath returns u with segments appended to its path.
func (u URI) JoinPath(segments ...string) URI {
	u.Path = path.Join(append([]string{u.Path}, segments...)...)
	return u
}

// WithScheme returns u with a different scheme.
func (u URI) WithScheme(scheme string) URI { u.Scheme = scheme; return u }

// WithPath returns u with a different path.
func (u URI) WithPath(p string) URI { u.Path = p; return u }

// WithQuery returns u with a different query.
func (u URI) WithQuery(q string) URI { u.Query = q; return u }

// WithFragment returns u with a different fragment.
func (u URI) WithFragment(f string) URI { u.Fragment = f; return u }

// String renders the URI. File URIs always carry the "//" authority marker.
func (u URI) String() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteByte(':')
	}
	if u.Authority != "" || u.Scheme == "file" {
		b.WriteString("//")
		b.WriteString(u.Authority)
	}
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// MarshalText renders the URI as its string form.
func (u URI) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText parses the string form.
func (u *URI) UnmarshalText(b []byte) error {
	parsed, err := ParseURI(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		in   string
		want URI
	}{
		{"https://example.com/a/b?x=1#frag", URI{Scheme: "https", Authority: "example.com", Path: "/a/b", Query: "x=1", Fragment: "frag"}},
		{"/home/user/file.go", URI{Scheme: "file", Path: "/home/user/file.go"}},
		{"file:///tmp/x.txt", URI{Scheme: "file", Path: "/tmp/x.txt"}},
		{"untitled:Untitled-1", URI{Scheme: "untitled", Path: "Untitled-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseURI(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseURI("")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestURIString(t *testing.T) {
	assert.Equal(t, "file:///tmp/a.go", FileURI("/tmp/a.go").String())
	assert.Equal(t, "https://example.com/x?q=1#f", URI{Scheme: "https", Authority: "example.com", Path: "/x", Query: "q=1", Fragment: "f"}.String())
	assert.Equal(t, "untitled:Untitled-1", URI{Scheme: "untitled", Path: "Untitled-1"}.String())
}

func TestURIJoinAndWith(t *testing.T) {
	base := FileURI("/work")
	assert.Equal(t, "/work/src/main.go", base.JoinPath("src", "main.go").Path)
	assert.Equal(t, "/work", base.Path, "JoinPath does not modify the receiver")

	u := base.WithScheme("vscode").WithQuery("a=b").WithFragment("top").WithPath("/other")
	assert.Equal(t, "vscode:/other?a=b#top", u.String())
	assert.Equal(t, "/other", u.FSPath())
	assert.False(t, u.IsZero())
	assert.True(t, URI{}.IsZero())
}

func TestURIJSONRoundTrip(t *testing.T) {
	in := struct {
		Target URI `json:"target"`
	}{Target: FileURI("/tmp/x.txt")}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"target":"file:///tmp/x.txt"}`, string(b))

	var out struct {
		Target URI `json:"target"`
	}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in.Target, out.Target)
}

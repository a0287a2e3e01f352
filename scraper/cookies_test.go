package scraper

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCookieSetKeepsOrderAndLastValue(t *testing.T) {
	first := newCookieSet([]*http.Cookie{
		{Name: "iamcsr", Value: "one"},
		{Name: "JSESSIONID", Value: "abc"},
	})
	second := first.with([]*http.Cookie{
		{Name: "iamcsr", Value: "two"},
		{Name: "_iamadt", Value: "xyz"},
		nil,
		{Name: ""},
	})

	assert.Equal(t, "iamcsr=one; JSESSIONID=abc", first.header())
	assert.Equal(t, "iamcsr=two; JSESSIONID=abc; _iamadt=xyz", second.header())
	assert.False(t, second.empty())
	assert.True(t, cookieSet{}.empty())
	assert.Equal(t, "", cookieSet{}.header())
}

func TestExtractCSRFToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"iamcsr=abc123", "abc123", true},
		{"JSESSIONID=x; iamcsr=abc123; _z=1", "abc123", true},
		{"JSESSIONID=x;iamcsr=tok", "tok", true},
		{"_iamcsr=nope; other=1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := extractCSRFToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestLoginStateAdvanceRotatesToken(t *testing.T) {
	state := loginState{cookies: newCookieSet([]*http.Cookie{{Name: "iamcsr", Value: "old"}}), csrf: "old"}

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", "iamcsr=new; Path=/")
	next := state.advance(resp)

	assert.Equal(t, "new", next.csrf)
	assert.Equal(t, "old", state.csrf)
	assert.Equal(t, "iamcsr=old", state.cookies.header())

	unchanged := next.advance(&http.Response{Header: http.Header{}})
	assert.Equal(t, "new", unchanged.csrf)
}

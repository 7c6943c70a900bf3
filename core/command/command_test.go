package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBasic(t *testing.T) {
	p, ok := Parse("/chat,model=gpt-4,n=2 hello there", DefaultPrefix)
	assert.True(t, ok)
	assert.Equal(t, "chat", p.Command)
	assert.Equal(t, "gpt-4", p.Kwargs["model"])
	assert.Equal(t, "2", p.Kwargs["n"])
	assert.Equal(t, "hello there", p.Body)
}

func TestParseNoArgs(t *testing.T) {
	p, ok := Parse("/help", DefaultPrefix)
	assert.True(t, ok)
	assert.Equal(t, "help", p.Command)
	assert.Empty(t, p.Kwargs)
	assert.Empty(t, p.Body)
}

func TestParseFlagWithNoValue(t *testing.T) {
	p, ok := Parse("/gen,verbose", DefaultPrefix)
	assert.True(t, ok)
	assert.Equal(t, "", p.Kwargs["verbose"])
	_, present := p.Kwargs["verbose"]
	assert.True(t, present)
}

func TestParseNotACommand(t *testing.T) {
	_, ok := Parse("just some chat", DefaultPrefix)
	assert.False(t, ok)
}

func TestParseCustomPrefix(t *testing.T) {
	p, ok := Parse("!ping", "!")
	assert.True(t, ok)
	assert.Equal(t, "ping", p.Command)
}

func TestGetDefault(t *testing.T) {
	p, _ := Parse("/cmd,a=1", DefaultPrefix)
	assert.Equal(t, "1", p.Get("a", "0"))
	assert.Equal(t, "fallback", p.Get("missing", "fallback"))
}

func TestGetBool(t *testing.T) {
	cases := map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, "on": true,
		"false": false, "0": false, "no": false, "nope": false,
	}
	for raw, want := range cases {
		p, _ := Parse("/cmd,flag="+raw, DefaultPrefix)
		assert.Equal(t, want, p.GetBool("flag", false), "raw=%s", raw)
	}
	p, _ := Parse("/cmd", DefaultPrefix)
	assert.True(t, p.GetBool("missing", true))
}

func TestGetIntAndFloat(t *testing.T) {
	p, _ := Parse("/cmd,n=7,ratio=0.5", DefaultPrefix)
	assert.Equal(t, 7, p.GetInt("n", 0))
	assert.Equal(t, 0.5, p.GetFloat("ratio", 0))
	assert.Equal(t, 42, p.GetInt("missing", 42))
}

func TestGetIntUnparsable(t *testing.T) {
	p, _ := Parse("/cmd,n=abc", DefaultPrefix)
	assert.Equal(t, 0, p.GetInt("n", 99))
}

func TestTextRoundTripsSingleArg(t *testing.T) {
	p := Parsed{Command: "chat", Kwargs: map[string]string{"model": "gpt-4"}, Body: "hi"}
	reparsed, ok := Parse(p.Text(DefaultPrefix), DefaultPrefix)
	assert.True(t, ok)
	assert.Equal(t, p.Command, reparsed.Command)
	assert.Equal(t, p.Kwargs, reparsed.Kwargs)
	assert.Equal(t, p.Body, reparsed.Body)
}

func TestStringToBool(t *testing.T) {
	assert.True(t, StringToBool(" Yes "))
	assert.False(t, StringToBool("maybe"))
}

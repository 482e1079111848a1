package smtp

import (
	"reflect"
	"testing"
)

func TestDecoderSplitTolerance(t *testing.T) {
	whole := "250-foo\r\n250 bar\r\n"
	splits := [][]string{
		{whole},
		{"2", "50-foo\r\n250 b", "ar\r\n"},
		{"250-foo\r", "\n250 bar\r", "\n"},
	}
	for _, parts := range splits {
		var d Decoder
		var got []Reply
		for _, p := range parts {
			got = append(got, d.Feed([]byte(p))...)
		}
		want := []Reply{{Code: 250, Lines: []string{"foo", "bar"}}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("parts %v: got %+v want %+v", parts, got, want)
		}
	}
}

func TestDecoderCodeConsistency(t *testing.T) {
	var d Decoder
	got := d.Feed([]byte("250-foo\r\n251 bar\r\n"))
	want := []Reply{{Code: 251, Lines: []string{"bar"}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestDecoderMalformedRecovery(t *testing.T) {
	cases := []string{
		"250-foo\r\n25X bad\r\n250 OK\r\n",
		"250-foo\r\nBAD\r\n250 OK\r\n",
	}
	for _, stream := range cases {
		var d Decoder
		got := d.Feed([]byte(stream))
		want := []Reply{{Code: 250, Lines: []string{"OK"}}}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("stream %q: got %+v want %+v", stream, got, want)
		}
	}
}

func TestDecoderEmptyLine(t *testing.T) {
	var d Decoder
	got := d.Feed([]byte("250-\r\n250 done\r\n"))
	want := []Reply{{Code: 250, Lines: []string{"", "done"}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestEnhancedStatusCodeExtraction(t *testing.T) {
	r := Reply{Code: 250, Lines: []string{"2.1.5 Ok", "SIZE 1024", " 2.1.0 Sender ok"}}
	got := r.EnhancedCodes()
	want := []string{"2.1.5", "2.1.0"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

package cli

import (
	"bytes"
	"flag"
	"io"
	"testing"
)

func TestHelpVersionFlags(t *testing.T) {
	cases := []struct {
		args        []string
		wantHelp    bool
		wantVersion bool
	}{
		{args: []string{"-h"}, wantHelp: true},
		{args: []string{"--help"}, wantHelp: true},
		{args: []string{"-v"}, wantVersion: true},
		{args: []string{"--version"}, wantVersion: true},
		{args: nil},
	}
	for _, tc := range cases {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		flags := AddHelpVersionFlags(fs)
		if err := fs.Parse(tc.args); err != nil {
			t.Fatalf("parse %v: %v", tc.args, err)
		}
		if flags.Help != tc.wantHelp || flags.Version != tc.wantVersion {
			t.Fatalf("args %v: got help=%v version=%v", tc.args, flags.Help, flags.Version)
		}
	}
}

func TestAddHelpVersionFlagsNilFlagSet(t *testing.T) {
	if flags := AddHelpVersionFlags(nil); flags == nil {
		t.Fatal("expected non-nil flags")
	}
}

func TestPrintOptionsAligns(t *testing.T) {
	var out bytes.Buffer
	PrintOptions(&out, "Options", []Option{
		{Name: "--addr ADDR", Description: "Listen address"},
		{Name: "-h, --help", Description: "Show help"},
	})
	want := "Options:\n  --addr ADDR  Listen address\n  -h, --help   Show help\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", out.String(), want)
	}

	out.Reset()
	PrintOptions(&out, "Empty", nil)
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

package smb1d

import (
	"testing"
	"time"
)

func TestParseDialectList(t *testing.T) {
	buf := []byte{}
	for _, s := range []string{"PC NETWORK PROGRAM 1.0", "NT LM 0.12"} {
		buf = append(buf, 0x02)
		buf = append(buf, []byte(s)...)
		buf = append(buf, 0)
	}
	got := parseDialectList(buf)
	want := []string{"PC NETWORK PROGRAM 1.0", "NT LM 0.12"}
	if len(got) != len(want) {
		t.Fatalf("got %d dialects, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dialect %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDialectList_malformedTag(t *testing.T) {
	buf := []byte{0x01, 'x'}
	if got := parseDialectList(buf); len(got) != 0 {
		t.Errorf("expected no dialects from a bad tag byte, got %v", got)
	}
}

func TestSelectDialect(t *testing.T) {
	tests := []struct {
		name     string
		offered  []string
		wantID   DialectID
		wantIdx  int
	}{
		{
			name:    "picks highest supported",
			offered: []string{"PC NETWORK PROGRAM 1.0", "LANMAN1.0", "NT LM 0.12"},
			wantID:  DialectNTLM,
			wantIdx: 2,
		},
		{
			name:    "no overlap",
			offered: []string{"BOGUS DIALECT"},
			wantID:  DialectUnknown,
			wantIdx: -1,
		},
		{
			name:    "pre-lanman only",
			offered: []string{"PC NETWORK PROGRAM 1.0"},
			wantID:  DialectCore,
			wantIdx: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, idx := selectDialect(tt.offered)
			if id != tt.wantID || idx != tt.wantIdx {
				t.Errorf("selectDialect(%v) = (%v, %d), want (%v, %d)", tt.offered, id, idx, tt.wantID, tt.wantIdx)
			}
		})
	}
}

func TestBuildNegotiateResult_noCommonDialect(t *testing.T) {
	opts := &ServerOptions{}
	_, serr := buildNegotiateResult([]string{"NOT A REAL DIALECT"}, opts, nil, nil, time.Now())
	if serr == nil {
		t.Fatal("expected an error for an empty dialect intersection")
	}
	if serr.Status != StatusNotSupported {
		t.Errorf("status = %v, want StatusNotSupported", serr.Status)
	}
}

func TestBuildNegotiateResult_preLanmanSkipsAuth(t *testing.T) {
	opts := &ServerOptions{MaxBufferSize: 16644, MaxMultiplexCount: 50}
	res, serr := buildNegotiateResult([]string{"PC NETWORK PROGRAM 1.0"}, opts, nil, nil, time.Now())
	if serr != nil {
		t.Fatalf("unexpected error: %v", serr)
	}
	if res.Dialect != DialectCore {
		t.Errorf("dialect = %v, want DialectCore", res.Dialect)
	}
	if res.Capabilities != 0 {
		t.Errorf("pre-lanman dialects should not carry NT capability flags, got %#x", res.Capabilities)
	}
}

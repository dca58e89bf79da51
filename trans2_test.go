package smb1d

import "testing"

func TestParseTrans2Primary(t *testing.T) {
	buf := make([]byte, 64)
	p := 0
	le.PutUint16(buf[p+0:], 10)  // TotalParameterCount
	le.PutUint16(buf[p+2:], 20)  // TotalDataCount
	le.PutUint16(buf[p+18:], 10) // ParameterCount
	le.PutUint16(buf[p+20:], 40) // ParameterOffset
	le.PutUint16(buf[p+22:], 20) // DataCount
	le.PutUint16(buf[p+24:], 50) // DataOffset
	buf[p+26] = 1                // SetupCount
	le.PutUint16(buf[p+28:], uint16(Trans2FindFirst2))

	pt := parseTrans2Primary(buf, p, 14)
	if pt.totalParamCount != 10 || pt.totalDataCount != 20 {
		t.Fatalf("totals = (%d, %d), want (10, 20)", pt.totalParamCount, pt.totalDataCount)
	}
	if pt.paramCount != 10 || pt.paramOffset != 40 {
		t.Errorf("param segment = (%d, %d), want (10, 40)", pt.paramCount, pt.paramOffset)
	}
	if pt.dataCount != 20 || pt.dataOffset != 50 {
		t.Errorf("data segment = (%d, %d), want (20, 50)", pt.dataCount, pt.dataOffset)
	}
	if len(pt.setup) != 1 || TransFunction(pt.functionCode) != Trans2FindFirst2 {
		t.Errorf("setup = %v, functionCode = %#x, want Trans2FindFirst2", pt.setup, pt.functionCode)
	}
}

func TestParseTrans2Secondary(t *testing.T) {
	buf := make([]byte, 32)
	le.PutUint16(buf[0:], 10) // TotalParameterCount
	le.PutUint16(buf[2:], 20) // TotalDataCount
	le.PutUint16(buf[4:], 5)  // ParameterCount
	le.PutUint16(buf[6:], 10) // ParameterOffset
	le.PutUint16(buf[8:], 5)  // ParameterDisplacement
	le.PutUint16(buf[10:], 8) // DataCount
	le.PutUint16(buf[12:], 16) // DataOffset
	le.PutUint16(buf[14:], 12) // DataDisplacement

	pt := parseTrans2Secondary(buf, 0)
	if !pt.isSecondary {
		t.Fatal("expected isSecondary to be set")
	}
	if pt.paramDisplacement != 5 || pt.dataDisplacement != 12 {
		t.Errorf("displacements = (%d, %d), want (5, 12)", pt.paramDisplacement, pt.dataDisplacement)
	}
}

func TestSegmentBytes(t *testing.T) {
	buf := []byte("0123456789")
	tests := []struct {
		name         string
		offset, count uint32
		want         string
		wantNil      bool
	}{
		{name: "in range", offset: 2, count: 3, want: "234"},
		{name: "zero length", offset: 0, count: 0, want: ""},
		{name: "overruns buffer", offset: 8, count: 10, wantNil: true},
		{name: "start past end", offset: 20, count: 0, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := segmentBytes(buf, tt.offset, tt.count)
			if tt.wantNil {
				if got != nil {
					t.Errorf("segmentBytes(%d, %d) = %q, want nil", tt.offset, tt.count, got)
				}
				return
			}
			if string(got) != tt.want {
				t.Errorf("segmentBytes(%d, %d) = %q, want %q", tt.offset, tt.count, got, tt.want)
			}
		})
	}
}

func TestBuildTransReply_shape(t *testing.T) {
	params := []byte{1, 2, 3, 4}
	data := []byte{5, 6, 7}
	rp, byteArea, isAndX, serr := buildTransReply(params, data)
	if serr != nil {
		t.Fatalf("unexpected error: %v", serr)
	}
	if isAndX {
		t.Error("transaction replies must not be AndX-capable")
	}
	if len(rp) != 20 {
		t.Fatalf("parameter block length = %d, want 20", len(rp))
	}
	if got := le.Uint16(rp[0:]); got != uint16(len(params)) {
		t.Errorf("TotalParameterCount = %d, want %d", got, len(params))
	}
	if got := le.Uint16(rp[2:]); got != uint16(len(data)) {
		t.Errorf("TotalDataCount = %d, want %d", got, len(data))
	}
	// pad byte, then params, then data
	wantByteArea := append([]byte{0}, append(append([]byte{}, params...), data...)...)
	if string(byteArea) != string(wantByteArea) {
		t.Errorf("byteArea = %v, want %v", byteArea, wantByteArea)
	}
}

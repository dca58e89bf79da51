package smb1d

import "testing"

func TestParseNTTransactPrimary(t *testing.T) {
	buf := make([]byte, 48)
	le.PutUint32(buf[3:], 100)  // TotalParameterCount
	le.PutUint32(buf[7:], 200)  // TotalDataCount
	le.PutUint32(buf[19:], 50)  // ParameterCount
	le.PutUint32(buf[23:], 40)  // ParameterOffset
	le.PutUint32(buf[27:], 80)  // DataCount
	le.PutUint32(buf[31:], 90)  // DataOffset
	le.PutUint16(buf[36:], uint16(NTTransactNotifyChange))

	pt := parseNTTransactPrimary(buf, 0)
	if pt.totalParamCount != 100 || pt.totalDataCount != 200 {
		t.Fatalf("totals = (%d, %d), want (100, 200)", pt.totalParamCount, pt.totalDataCount)
	}
	if pt.paramCount != 50 || pt.paramOffset != 40 {
		t.Errorf("param segment = (%d, %d), want (50, 40)", pt.paramCount, pt.paramOffset)
	}
	if TransFunction(pt.function) != NTTransactNotifyChange {
		t.Errorf("function = %#x, want NTTransactNotifyChange", pt.function)
	}
}

func TestParseNTTransactSecondary(t *testing.T) {
	buf := make([]byte, 48)
	le.PutUint32(buf[3:], 100)  // TotalParameterCount
	le.PutUint32(buf[7:], 200)  // TotalDataCount
	le.PutUint32(buf[11:], 50)  // ParameterCount
	le.PutUint32(buf[15:], 40)  // ParameterOffset
	le.PutUint32(buf[19:], 20)  // ParameterDisplacement
	le.PutUint32(buf[23:], 80)  // DataCount
	le.PutUint32(buf[27:], 90)  // DataOffset
	le.PutUint32(buf[31:], 60)  // DataDisplacement

	pt := parseNTTransactSecondary(buf, 0)
	if pt.paramDisplacement != 20 || pt.dataDisplacement != 60 {
		t.Errorf("displacements = (%d, %d), want (20, 60)", pt.paramDisplacement, pt.dataDisplacement)
	}
}

func TestSegmentBytes32(t *testing.T) {
	buf := []byte("abcdefghij")
	if got := string(segmentBytes32(buf, 3, 4)); got != "defg" {
		t.Errorf("segmentBytes32(3, 4) = %q, want %q", got, "defg")
	}
	if got := segmentBytes32(buf, 8, 10); got != nil {
		t.Errorf("segmentBytes32 overrunning buffer = %v, want nil", got)
	}
}

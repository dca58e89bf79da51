package smb1d

import "time"

// Windows FILETIME: 100-nanosecond intervals since 1601-01-01 UTC. Every
// SMB1 timestamp field (NTCreateAndX, Trans2 query/set path info, directory
// listings) uses this encoding (MS-DTYP 2.3.3).
const filetimeEpochOffset = 116444736000000000 // 1601-01-01 -> 1970-01-01, in 100ns units

// TimeToFiletime converts a Go time to a Windows FILETIME value. The zero
// time maps to 0, which clients treat as "not set".
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + filetimeEpochOffset)
}

// FiletimeToTime converts a Windows FILETIME value back to a Go time. 0
// maps to the zero time.
func FiletimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(0, (int64(ft)-filetimeEpochOffset)*100).UTC()
}

// toDosDateTime packs a time into the legacy 16-bit MS-DOS date/time pair
// used by SMB_INFO_STANDARD search entries and the LanMan Negotiate reply
// (MS-DTYP 2.3.1). The zero time and dates before 1980 encode as date 0,
// time 0.
func toDosDateTime(t time.Time) (date, dosTime uint16) {
	if t.IsZero() || t.Year() < 1980 {
		return 0, 0
	}
	date = uint16((t.Year()-1980)<<9 | int(t.Month())<<5 | t.Day())
	dosTime = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return date, dosTime
}

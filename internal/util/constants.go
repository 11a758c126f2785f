package util

import "strings"

const (
	// ParquetExt is the file extension identifying dataset piece files
	ParquetExt = ".parquet"
	// SuccessMarker is the zero-byte marker JVM writers leave beside pieces
	SuccessMarker = "_SUCCESS"
)

// IsPiecePath returns true iff path names a Parquet piece file rather than a
// marker, checksum or hidden file
func IsPiecePath(path string) bool {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
		return false
	}
	return strings.HasSuffix(base, ParquetExt)
}

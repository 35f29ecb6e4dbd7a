package frame

import "hash/crc32"

// The hub validates uploads with CRC-32 (IEEE polynomial): the host sends
// the whole-file checksum with StartFileUpload and a running checksum with
// every chunk. crc32.Update folds chunk by chunk to the same value as a
// one-shot checksum over the whole buffer, regardless of chunking.

// UpdateCRC extends a running checksum with chunk.
func UpdateCRC(running uint32, chunk []byte) uint32 {
	return crc32.Update(running, crc32.IEEETable, chunk)
}

// ChecksumCRC computes the checksum of data in one shot.
func ChecksumCRC(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

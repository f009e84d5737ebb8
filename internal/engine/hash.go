package engine

// Bucket maps a subject id to a deterministic integer in [0,100). The hash
// is the classic h = h*31 + c accumulator confined to 32 bits, so the same
// subject lands in the same bucket across calls and process restarts.
func Bucket(subjectID string) int {
	var h uint32
	for _, c := range subjectID {
		h = h*31 + uint32(c)
	}
	n := int64(int32(h))
	if n < 0 {
		n = -n
	}
	return int(n % 100)
}

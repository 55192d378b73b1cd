package codec

func zigZagInt64(i int64) uint64 {
	return uint64((i >> 63) ^ (i << 1))
}

func zagZigUint64(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

package game

// mix64 is a splitmix64 finaliser.
func mix64(a, b uint64) uint64 {
	x := a + b + 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// DeriveSeed folds parts into base to give independent, reproducible rng
// seeds, e.g. one per (episode, agent).
func DeriveSeed(base int64, parts ...uint64) int64 {
	x := uint64(base)
	for _, p := range parts {
		x = mix64(x, p)
	}
	return int64(x)
}

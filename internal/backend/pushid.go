package backend

import "math/rand"

// Push keys sort lexicographically in allocation order: 8 characters of
// millisecond timestamp followed by 12 random characters, in an alphabet
// whose byte order matches its index order. Keys allocated in the same
// millisecond reuse the previous random tail incremented by one, so order
// survives bursts.
const pushAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// PushIDGenerator allocates store child keys. Not safe for concurrent use;
// callers serialize with their own lock.
type PushIDGenerator struct {
	lastMs   int64
	lastRand [12]int
}

func (g *PushIDGenerator) Next(nowMs int64) string {
	if nowMs == g.lastMs {
		for i := 11; i >= 0; i-- {
			g.lastRand[i]++
			if g.lastRand[i] < 64 {
				break
			}
			g.lastRand[i] = 0
		}
	} else {
		g.lastMs = nowMs
		for i := range g.lastRand {
			g.lastRand[i] = rand.Intn(64)
		}
	}

	var buf [20]byte
	ts := nowMs
	for i := 7; i >= 0; i-- {
		buf[i] = pushAlphabet[ts%64]
		ts /= 64
	}
	for i, r := range g.lastRand {
		buf[8+i] = pushAlphabet[r]
	}
	return string(buf[:])
}

package transport

// Consensus combines bursts, given in arrival order, by majority vote on every bit.
//
// The output is as long as the longest burst. A burst votes only on the positions it
// covers. A tied vote takes the bit from the earliest burst that covers the position.
func Consensus(bursts [][]byte) []byte {
	switch len(bursts) {
	case 0:
		return nil
	case 1:
		out := make([]byte, len(bursts[0]))
		copy(out, bursts[0])
		return out
	}

	length := 0
	for _, b := range bursts {
		if len(b) > length {
			length = len(b)
		}
	}

	out := make([]byte, length)
	votes := make([]byte, 0, len(bursts))
	for i := range out {
		votes = votes[:0]
		for _, b := range bursts {
			if i < len(b) {
				votes = append(votes, b[i])
			}
		}
		out[i] = voteByte(votes)
	}
	return out
}

func voteByte(votes []byte) byte {
	var out byte
	for bit := 0; bit < 8; bit++ {
		mask := byte(1) << bit

		ones := 0
		for _, v := range votes {
			if v&mask != 0 {
				ones++
			}
		}

		switch {
		case 2*ones > len(votes):
			out |= mask
		case 2*ones == len(votes):
			out |= votes[0] & mask
		}
	}
	return out
}

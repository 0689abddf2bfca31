package protocol

// Cipher is a running keystream. Each call to Next consumes one value.
type Cipher interface {
	Next() uint32
}

const (
	isaacSizeLog = 8
	isaacSize    = 1 << isaacSizeLog
	isaacMask    = (isaacSize - 1) << 2
	goldenRatio  = 0x9e3779b9
)

// ISAAC is Bob Jenkins' ISAAC generator as used by the client for opcode
// obfuscation. It is not safe for concurrent use.
type ISAAC struct {
	rsl     [isaacSize]uint32
	mem     [isaacSize]uint32
	a, b, c uint32
	count   int
}

// NewISAAC seeds a generator. Up to 256 seed words are used.
func NewISAAC(seed []uint32) *ISAAC {
	r := &ISAAC{}
	copy(r.rsl[:], seed)
	r.init()
	return r
}

func (r *ISAAC) Next() uint32 {
	if r.count == 0 {
		r.isaac()
		r.count = isaacSize
	}
	r.count--
	return r.rsl[r.count]
}

func (r *ISAAC) isaac() {
	r.c++
	r.b += r.c
	for i := 0; i < isaacSize; i++ {
		x := r.mem[i]
		switch i & 3 {
		case 0:
			r.a ^= r.a << 13
		case 1:
			r.a ^= r.a >> 6
		case 2:
			r.a ^= r.a << 2
		case 3:
			r.a ^= r.a >> 16
		}
		r.a += r.mem[(i+isaacSize/2)&(isaacSize-1)]
		y := r.mem[(x&isaacMask)>>2] + r.a + r.b
		r.mem[i] = y
		r.b = r.mem[((y>>isaacSizeLog)&isaacMask)>>2] + x
		r.rsl[i] = r.b
	}
}

func (r *ISAAC) init() {
	var v [8]uint32
	for i := range v {
		v[i] = goldenRatio
	}
	for i := 0; i < 4; i++ {
		mix(&v)
	}

	for i := 0; i < isaacSize; i += 8 {
		for j := 0; j < 8; j++ {
			v[j] += r.rsl[i+j]
		}
		mix(&v)
		copy(r.mem[i:i+8], v[:])
	}
	for i := 0; i < isaacSize; i += 8 {
		for j := 0; j < 8; j++ {
			v[j] += r.mem[i+j]
		}
		mix(&v)
		copy(r.mem[i:i+8], v[:])
	}

	r.isaac()
	r.count = isaacSize
}

func mix(v *[8]uint32) {
	v[0] ^= v[1] << 11
	v[3] += v[0]
	v[1] += v[2]
	v[1] ^= v[2] >> 2
	v[4] += v[1]
	v[2] += v[3]
	v[2] ^= v[3] << 8
	v[5] += v[2]
	v[3] += v[4]
	v[3] ^= v[4] >> 16
	v[6] += v[3]
	v[4] += v[5]
	v[4] ^= v[5] << 10
	v[7] += v[4]
	v[5] += v[6]
	v[5] ^= v[6] >> 4
	v[0] += v[5]
	v[6] += v[7]
	v[6] ^= v[7] << 8
	v[1] += v[6]
	v[7] += v[0]
	v[7] ^= v[0] >> 9
	v[2] += v[7]
	v[0] += v[1]
}

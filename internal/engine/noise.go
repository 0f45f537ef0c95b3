package engine

import "hash/fnv"

// nodeSeed derives a stable seed from a node id. FNV keeps seeds
// identical across processes, so reruns of the same graph produce
// byte-identical randomized output.
func nodeSeed(nodeID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(nodeID))
	return h.Sum64()
}

// hashCombine mixes a value into a seed (splitmix64 finalizer).
func hashCombine(seed, v uint64) uint64 {
	x := seed ^ v
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// noiseAt3D returns a pseudo-random value in [-1, 1] for an integer
// lattice point.
func noiseAt3D(x, y, z int64, seed uint64) float32 {
	h := hashCombine(hashCombine(hashCombine(seed, uint64(x)), uint64(y)), uint64(z))
	return float32(float64(h)/float64(^uint64(0)))*2 - 1
}

func smoothstep(t float32) float32 {
	return t * t * (3 - 2*t)
}

// valueNoise3D is trilinear smoothstep-interpolated lattice noise. The
// x and y axes are spatial, z is time.
func valueNoise3D(x, y, z float32, seed uint64) float32 {
	x0 := floor64(x)
	y0 := floor64(y)
	z0 := floor64(z)

	tx := smoothstep(x - float32(x0))
	ty := smoothstep(y - float32(y0))
	tz := smoothstep(z - float32(z0))

	n000 := noiseAt3D(x0, y0, z0, seed)
	n100 := noiseAt3D(x0+1, y0, z0, seed)
	n010 := noiseAt3D(x0, y0+1, z0, seed)
	n110 := noiseAt3D(x0+1, y0+1, z0, seed)
	n001 := noiseAt3D(x0, y0, z0+1, seed)
	n101 := noiseAt3D(x0+1, y0, z0+1, seed)
	n011 := noiseAt3D(x0, y0+1, z0+1, seed)
	n111 := noiseAt3D(x0+1, y0+1, z0+1, seed)

	nx00 := n000 + tx*(n100-n000)
	nx10 := n010 + tx*(n110-n010)
	nx01 := n001 + tx*(n101-n001)
	nx11 := n011 + tx*(n111-n011)

	nxy0 := nx00 + ty*(nx10-nx00)
	nxy1 := nx01 + ty*(nx11-nx01)

	return nxy0 + tz*(nxy1-nxy0)
}

// fractalNoise3D sums octaves of value noise, halving amplitude and
// doubling frequency per octave, normalized back to [-1, 1].
func fractalNoise3D(x, y, z float32, seed uint64, octaves int) float32 {
	var total, maxValue float32
	frequency := float32(1)
	amplitude := float32(1)

	for i := 0; i < octaves; i++ {
		octaveSeed := hashCombine(seed, uint64(i)*12345)
		total += valueNoise3D(x*frequency, y*frequency, z*frequency, octaveSeed) * amplitude
		maxValue += amplitude
		amplitude *= 0.5
		frequency *= 2
	}

	return total / maxValue
}

func floor64(v float32) int64 {
	i := int64(v)
	if float32(i) > v {
		i--
	}
	return i
}

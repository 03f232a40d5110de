package filter

// Convolution is a FIR filter over the most recent len(kernel) samples
type Convolution struct {
	kernel []float64
	buffer []float64
}

// MovingAverage returns a kernel averaging n samples
func MovingAverage(n int) []float64 {
	if n < 1 {
		n = 1
	}
	k := make([]float64, n)
	for i := range k {
		k[i] = 1 / float64(n)
	}
	return k
}

// HighPass is a short kernel suppressing slow drift
func HighPass() []float64 {
	return []float64{1.0 / 3, -1.0 / 3, 1.0 / 3}
}

// NewConvolution creates a filter whose history starts at zero
func NewConvolution(kernel []float64) *Convolution {
	c := &Convolution{}
	c.SetKernel(kernel)
	return c
}

// SetKernel replaces the kernel and zeroes the history
func (c *Convolution) SetKernel(kernel []float64) {
	c.kernel = make([]float64, len(kernel))
	copy(c.kernel, kernel)
	c.buffer = make([]float64, len(kernel))
}

// Kernel returns a copy of the kernel
func (c *Convolution) Kernel() []float64 {
	out := make([]float64, len(c.kernel))
	copy(out, c.kernel)
	return out
}

// Reset zeroes the history
func (c *Convolution) Reset() {
	for i := range c.buffer {
		c.buffer[i] = 0
	}
}

func (c *Convolution) ProcessSample(v float64) float64 {
	if len(c.buffer) == 0 {
		return 0
	}
	copy(c.buffer, c.buffer[1:])
	c.buffer[len(c.buffer)-1] = v

	sum := 0.0
	for i, k := range c.kernel {
		sum += k * c.buffer[i]
	}
	return sum
}

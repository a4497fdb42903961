package entity

// Sample is the roundtrip payload: a batch of flattened, normalized images.
type Sample struct {
	NDArray [][]float64 `json:"ndarray"`
}

// Shape returns the batch size and the width of the first row.
func (s Sample) Shape() (rows, cols int) {
	if len(s.NDArray) == 0 {
		return 0, 0
	}
	return len(s.NDArray), len(s.NDArray[0])
}

// Reading is the payload of the send-stream job.
type Reading struct {
	Value int `json:"value"`
}

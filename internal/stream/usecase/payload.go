package usecase

import (
	"math/rand/v2"

	"github.com/shandysiswandi/gostream/internal/stream/entity"
)

// randomSample stands in for one preprocessed image: width pixels in [0, 1).
func randomSample(width int) entity.Sample {
	row := make([]float64, width)
	for i := range row {
		row[i] = rand.Float64() //nolint:gosec // synthetic payload
	}
	return entity.Sample{NDArray: [][]float64{row}}
}

func randomReading() entity.Reading {
	return entity.Reading{Value: rand.IntN(100)} //nolint:gosec // synthetic payload
}

package scoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
)

const weightVersionPrefix = "v"

// SeedWeights builds the initial weight set from configured values. Seed sets
// are always version v0; refits mint successors.
func SeedWeights(w1, w2 float64) model.WeightSet {
	return model.WeightSet{
		Version:   weightVersionPrefix + "0",
		W1:        w1,
		W2:        w2,
		Origin:    model.WeightsSeed,
		CreatedAt: time.Now().UTC(),
	}
}

// NextVersion returns the successor of a weight version label: v0 -> v1.
func NextVersion(cur string) string {
	n, err := strconv.Atoi(strings.TrimPrefix(cur, weightVersionPrefix))
	if err != nil {
		return weightVersionPrefix + "1"
	}
	return weightVersionPrefix + strconv.Itoa(n+1)
}

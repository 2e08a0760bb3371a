package markov

// Normalize converts each row of counts into a probability distribution over
// successor IDs and returns the result as a new matrix; counts is left
// untouched. Rows that sum to zero stay all-zero, so no NaN or Inf can reach
// the result.
func Normalize(counts *Matrix) *Matrix {
	probs := NewMatrix(counts.n)
	for i, row := range counts.rows {
		s := counts.RowSum(i)
		if s == 0 {
			continue
		}
		probs.rows[i] = make(map[int]float64, len(row))
		for col, v := range row {
			probs.rows[i][col] = v / s
		}
	}
	return probs
}

package transcript

import "slices"

// Allocate splits total items over len(weights) buckets in proportion to the
// weights using the largest-remainder method. The returned counts always sum
// to total. Ties in the remainder go to the earlier bucket. When every weight
// is zero or negative the split is even, with earlier buckets taking the
// surplus.
func Allocate(total int, weights []int) []int {
	n := len(weights)
	if n == 0 {
		return nil
	}
	counts := make([]int, n)
	if total <= 0 {
		return counts
	}

	sum := 0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 {
		return AllocateEven(total, n)
	}

	rem := make([]int, n)
	assigned := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		num := total * w
		counts[i] = num / sum
		rem[i] = num % sum
		assigned += counts[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return rem[b] - rem[a] })
	for _, i := range order[:total-assigned] {
		counts[i]++
	}
	return counts
}

// AllocateEven splits total items over n buckets round-robin: every bucket
// gets total/n and the first total%n buckets one more.
func AllocateEven(total, n int) []int {
	if n <= 0 {
		return nil
	}
	counts := make([]int, n)
	for i := range total {
		counts[i%n]++
	}
	return counts
}

// Distribute assigns sentences to buckets contiguously, in order, following
// counts. The counts must sum to len(sentences).
func Distribute(sentences []string, counts []int) [][]string {
	out := make([][]string, len(counts))
	next := 0
	for i, c := range counts {
		end := min(next+c, len(sentences))
		out[i] = sentences[next:end]
		next = end
	}
	return out
}

package textutil

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	return dot / (a.norm * b.norm)
}

// Similarity compares two strings by fingerprint. Two empty strings are equal.
func Similarity(a, b string) float64 {
	fa, fb := NewFingerprint(a), NewFingerprint(b)
	if fa == nil && fb == nil {
		return 1
	}
	return CosineSimilarity(fa, fb)
}

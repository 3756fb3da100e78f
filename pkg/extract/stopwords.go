package extract

// Stop words for both supported languages. Tokens of three letters or fewer
// are filtered by length before this set is consulted, so short function
// words are omitted.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// English
		"that", "with", "this", "from", "have", "were", "they", "them",
		"your", "will", "been", "their", "which", "about", "there",
		"what", "when", "would", "should", "could", "into", "than",
		"then", "some", "such", "only", "also", "more", "most", "other",
		// Russian
		"что", "это", "этот", "этого", "если", "быть", "была", "было",
		"были", "чтобы", "когда", "только", "есть", "тоже", "также",
		"того", "меня", "тебя", "себя", "него", "будет", "может",
		"более", "всех", "после", "перед", "между", "очень",
	} {
		stopWords[w] = struct{}{}
	}
}

package extract

import (
	"sort"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateSelectors are removed before text analysis. Word count,
// readability and keywords must all come from this one extraction so
// every consumer sees the same numbers for the same page.
var boilerplateSelectors = []string{
	"script", "style", "noscript", "template", "svg",
	"nav", "header", "footer", "aside",
	"[role=navigation]", "[role=banner]", "[role=contentinfo]",
}

// visibleText returns the page's visible body text with structural
// boilerplate (navigation, header, footer) removed.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}

	clone := body.Clone()
	for _, selector := range boilerplateSelectors {
		clone.Find(selector).Remove()
	}

	return strings.Join(strings.Fields(clone.Text()), " ")
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// readability computes Flesch Reading Ease and average sentence length
// from the shared text extraction.
func readability(text string) ReadabilitySignal {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ReadabilitySignal{}
	}

	sentences := countSentences(text)
	if sentences == 0 {
		sentences = 1
	}

	syllables := 0
	for _, word := range words {
		syllables += countSyllables(word)
	}

	wordCount := float64(len(words))
	avgSentenceLength := wordCount / float64(sentences)
	flesch := 206.835 - 1.015*avgSentenceLength - 84.6*(float64(syllables)/wordCount)

	// Flesch is open-ended below zero for pathological text; clamp to
	// the conventional reporting range.
	if flesch < 0 {
		flesch = 0
	}
	if flesch > 100 {
		flesch = 100
	}

	return ReadabilitySignal{
		FleschScore:       flesch,
		AvgSentenceLength: avgSentenceLength,
	}
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

// countSyllables estimates syllables by counting vowel groups, with the
// usual silent-e adjustment. Imperfect but consistent, which is what
// the scoring engine needs.
func countSyllables(word string) int {
	word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	if word == "" {
		return 0
	}

	isVowel := func(r rune) bool {
		return strings.ContainsRune("aeiouy", r)
	}

	count := 0
	prevVowel := false
	for _, r := range word {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}

	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

// stopwords excluded from keyword extraction.
var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {}, "and": {},
	"any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "been": {}, "but": {},
	"by": {}, "can": {}, "could": {}, "do": {}, "for": {}, "from": {}, "get": {},
	"has": {}, "have": {}, "he": {}, "her": {}, "his": {}, "how": {}, "i": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "just": {},
	"like": {}, "more": {}, "most": {}, "my": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "one": {}, "or": {}, "other": {}, "our": {}, "out": {}, "over": {},
	"she": {}, "so": {}, "some": {}, "than": {}, "that": {}, "the": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "to": {}, "up": {}, "us": {}, "was": {}, "we": {}, "were": {},
	"what": {}, "when": {}, "which": {}, "who": {}, "will": {}, "with": {},
	"would": {}, "you": {}, "your": {},
}

// topKeywords returns the highest-frequency terms, weighting words that
// also appear in the title or an H1.
func topKeywords(text, title string, h1s []string, limit int) []string {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		counts[word]++
	}

	emphasis := strings.ToLower(title + " " + strings.Join(h1s, " "))
	for word := range counts {
		if strings.Contains(emphasis, word) {
			counts[word] += 5
		}
	}

	type wordCount struct {
		word  string
		count int
	}
	ranked := make([]wordCount, 0, len(counts))
	for word, count := range counts {
		ranked = append(ranked, wordCount{word, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if limit > len(ranked) {
		limit = len(ranked)
	}
	keywords := make([]string, 0, limit)
	for _, wc := range ranked[:limit] {
		keywords = append(keywords, wc.word)
	}
	return keywords
}

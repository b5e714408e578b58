package analysis

// defaultStopWords covers French function words and auxiliaries, common
// Darija transliterations and a handful of English words found in the
// reference PDFs.
var defaultStopWords = newWordSet(
	// French articles, pronouns, prepositions
	"au", "aux", "avec", "ce", "ces", "dans", "de", "des", "du", "elle", "en", "et", "eux",
	"il", "je", "la", "le", "leur", "lui", "ma", "mais", "me", "même", "mes", "moi", "mon",
	"ne", "nos", "notre", "nous", "on", "ou", "par", "pas", "pour", "qu", "que", "qui", "sa",
	"se", "ses", "son", "sur", "ta", "te", "tes", "toi", "ton", "tu", "un", "une", "vos", "votre",
	"vous", "c", "d", "j", "l", "m", "n", "s", "t", "y", "à", "ça", "là",

	// être / avoir
	"été", "étant", "suis", "es", "est", "sommes", "êtes", "sont", "serai", "sera", "serons",
	"seront", "étais", "était", "étions", "étaient", "sois", "soit", "soyons", "soient",
	"eu", "ai", "as", "avons", "avez", "ont", "aurai", "aura", "aurons", "auront",
	"avais", "avait", "avions", "avaient", "aie", "ait", "ayons", "aient",

	// Darija
	"dyal", "dial", "f", "fi", "men", "mn", "w", "o", "wa", "li", "lli",
	"bach", "3la", "3ala", "kif", "wash", "had", "houwa", "hiya",

	// English
	"the", "of", "and", "in", "to", "is", "a", "for", "with",
)

type wordSet map[string]struct{}

func newWordSet(words ...string) wordSet {
	s := make(wordSet, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func (s wordSet) has(w string) bool {
	_, ok := s[w]
	return ok
}

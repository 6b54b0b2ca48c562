// Package text normalizes raw document text and splits it into bounded,
// speakable chunks for synthesis.
package text

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	// NumberBaseTen represents the base for the decimal number system.
	NumberBaseTen = 10
	// NumberBaseTwenty represents the boundary for teen numbers.
	NumberBaseTwenty = 20
	// NumberBaseHundred represents the base for hundreds.
	NumberBaseHundred = 100
	// NumberBaseThousand represents the base for thousands.
	NumberBaseThousand = 1000
	// MaxNumberForWords is the largest integer converted to words; larger
	// numbers are read digit by digit.
	MaxNumberForWords = 999999
)

// Regex patterns for speech-hostile constructs.
const (
	urlRegexPattern      = `https?://([a-zA-Z0-9.-]+)(/\S*)?`
	emailRegexPattern    = `([a-zA-Z0-9._%+-]+)@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`
	currencyRegexPattern = `\$(\d+(?:\.\d+)?)`
	percentRegexPattern  = `(\d+(?:\.\d+)?)%`
	decimalRegexPattern  = `(\d+)\.(\d+)`
	integerRegexPattern  = `\d+`
	acronymRegexPattern  = `\b[A-Z]{2,5}\b`
	whitespacePattern    = `\s+`
)

// Punctuation normalization constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Preprocessor rewrites raw text into a speakable, normalized form. The same
// input always yields byte-identical output, which downstream cache keys
// depend on.
type Preprocessor struct {
	urlPattern        *regexp.Regexp
	emailPattern      *regexp.Regexp
	currencyPattern   *regexp.Regexp
	percentPattern    *regexp.Regexp
	decimalPattern    *regexp.Regexp
	integerPattern    *regexp.Regexp
	acronymPattern    *regexp.Regexp
	whitespacePattern *regexp.Regexp

	abbreviationReplacer *strings.Replacer
	quoteDashReplacer    *strings.Replacer
}

// NewPreprocessor creates a preprocessor with all patterns compiled upfront.
func NewPreprocessor() *Preprocessor {
	abbreviations := []string{
		"Mr.", "Mister",
		"Mrs.", "Misses",
		"Ms.", "Miss",
		"Dr.", "Doctor",
		"St.", "Saint",
		"Co.", "Company",
		"Ltd.", "Limited",
		"Corp.", "Corporation",
		"Inc.", "Incorporated",
		"etc.", "et cetera",
		"vs.", "versus",
	}

	quotesAndDashes := []string{
		emDash, "-",
		enDash, "-",
		figureDash, "-",
		ellipsisChar, ellipsis,
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	}

	return &Preprocessor{
		urlPattern:           regexp.MustCompile(urlRegexPattern),
		emailPattern:         regexp.MustCompile(emailRegexPattern),
		currencyPattern:      regexp.MustCompile(currencyRegexPattern),
		percentPattern:       regexp.MustCompile(percentRegexPattern),
		decimalPattern:       regexp.MustCompile(decimalRegexPattern),
		integerPattern:       regexp.MustCompile(integerRegexPattern),
		acronymPattern:       regexp.MustCompile(acronymRegexPattern),
		whitespacePattern:    regexp.MustCompile(whitespacePattern),
		abbreviationReplacer: strings.NewReplacer(abbreviations...),
		quoteDashReplacer:    strings.NewReplacer(quotesAndDashes...),
	}
}

// Normalize runs the full rewriting pipeline. Cheaper, more targeted
// rewrites run before the generic number conversion so that currency and
// decimal forms are not consumed as bare integers first.
func (p *Preprocessor) Normalize(text string) string {
	if text == "" {
		return text
	}

	normalized := p.abbreviationReplacer.Replace(text)
	normalized = p.rewriteURLs(normalized)
	normalized = p.rewriteEmails(normalized)
	normalized = p.rewriteCurrency(normalized)
	normalized = p.rewritePercentages(normalized)
	normalized = p.rewriteDecimals(normalized)
	normalized = p.rewriteIntegers(normalized)
	normalized = p.rewriteAcronyms(normalized)
	normalized = p.removeRepeatedPunctuation(normalized)
	normalized = p.quoteDashReplacer.Replace(normalized)

	return p.normalizeWhitespace(normalized)
}

// rewriteURLs reduces a URL to its spoken host name ("example dot com").
// The path rarely survives being read aloud, so it is dropped.
func (p *Preprocessor) rewriteURLs(text string) string {
	return p.urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := p.urlPattern.FindStringSubmatch(match)

		return spellDomain(groups[1])
	})
}

// rewriteEmails turns "name@example.com" into "name at example dot com".
func (p *Preprocessor) rewriteEmails(text string) string {
	return p.emailPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := p.emailPattern.FindStringSubmatch(match)

		return groups[1] + " at " + spellDomain(groups[2])
	})
}

func spellDomain(domain string) string {
	return strings.ReplaceAll(domain, ".", " dot ")
}

// rewriteCurrency turns "$5" into "5 dollars". The amount is converted to
// words by the later number passes.
func (p *Preprocessor) rewriteCurrency(text string) string {
	return p.currencyPattern.ReplaceAllString(text, "$1 dollars")
}

// rewritePercentages turns "42%" into "42 percent".
func (p *Preprocessor) rewritePercentages(text string) string {
	return p.percentPattern.ReplaceAllString(text, "$1 percent")
}

// rewriteDecimals reads the fraction digit by digit: "3.14" becomes
// "three point one four".
func (p *Preprocessor) rewriteDecimals(text string) string {
	return p.decimalPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := p.decimalPattern.FindStringSubmatch(match)

		return numberToWords(groups[1]) + " point " + digitsToWords(groups[2])
	})
}

// rewriteIntegers converts remaining bare integers to words.
func (p *Preprocessor) rewriteIntegers(text string) string {
	return p.integerPattern.ReplaceAllStringFunc(text, numberToWords)
}

// numberToWords converts a digit run to words, falling back to digit-by-digit
// reading when the run does not fit in an int.
func numberToWords(digits string) string {
	number, err := strconv.Atoi(digits)
	if err != nil {
		return digitsToWords(digits)
	}

	return integerToWords(number)
}

// rewriteAcronyms spaces out bare all-caps tokens so the synthesizer spells
// them instead of attempting a pronunciation ("TTS" -> "T T S").
func (p *Preprocessor) rewriteAcronyms(text string) string {
	return p.acronymPattern.ReplaceAllStringFunc(text, func(match string) string {
		letters := strings.Split(match, "")

		return strings.Join(letters, " ")
	})
}

// removeRepeatedPunctuation collapses runs of punctuation to their first
// character ("wait!!!" -> "wait!").
func (p *Preprocessor) removeRepeatedPunctuation(text string) string {
	var (
		result   []rune
		lastRune rune
	)

	for _, char := range text {
		if unicode.IsPunct(char) && char == lastRune {
			continue
		}

		result = append(result, char)
		lastRune = char
	}

	return string(result)
}

// normalizeWhitespace collapses all whitespace runs to single spaces and
// trims the ends.
func (p *Preprocessor) normalizeWhitespace(text string) string {
	return strings.TrimSpace(p.whitespacePattern.ReplaceAllString(text, " "))
}

// digitsToWords reads a digit string one digit at a time.
func digitsToWords(digits string) string {
	names := []string{
		"zero", "one", "two", "three", "four",
		"five", "six", "seven", "eight", "nine",
	}

	words := make([]string, 0, len(digits))

	for _, digit := range digits {
		if digit < '0' || digit > '9' {
			continue
		}

		words = append(words, names[digit-'0'])
	}

	return strings.Join(words, " ")
}

type numberConverter struct {
	ones  []string
	teens []string
	tens  []string
}

func newNumberConverter() *numberConverter {
	return &numberConverter{
		ones: []string{
			"", "one", "two", "three", "four", "five",
			"six", "seven", "eight", "nine",
		},
		teens: []string{
			"ten", "eleven", "twelve", "thirteen", "fourteen",
			"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
		},
		tens: []string{
			"", "", "twenty", "thirty", "forty", "fifty",
			"sixty", "seventy", "eighty", "ninety",
		},
	}
}

func (nc *numberConverter) convertUnderTen(num int) string {
	return nc.ones[num]
}

func (nc *numberConverter) convertTeens(num int) string {
	return nc.teens[num-NumberBaseTen]
}

func (nc *numberConverter) convertTens(num int) string {
	result := nc.tens[num/NumberBaseTen]
	if num%NumberBaseTen > 0 {
		result += " " + nc.ones[num%NumberBaseTen]
	}

	return result
}

func (nc *numberConverter) convertUnderHundred(num int) string {
	if num < NumberBaseTen {
		return nc.convertUnderTen(num)
	}

	if num < NumberBaseTwenty {
		return nc.convertTeens(num)
	}

	return nc.convertTens(num)
}

func (nc *numberConverter) convertHundreds(num int) string {
	result := nc.ones[num/NumberBaseHundred] + " hundred"

	remainder := num % NumberBaseHundred
	if remainder > 0 {
		result += " " + nc.convertUnderHundred(remainder)
	}

	return result
}

func (nc *numberConverter) processThousands(number int, parts *[]string) int {
	thousands := number / NumberBaseThousand
	if thousands > 0 {
		*parts = append(*parts, nc.convertUnderThousand(thousands)+" thousand")
	}

	return number % NumberBaseThousand
}

func (nc *numberConverter) convertUnderThousand(num int) string {
	if num >= NumberBaseHundred {
		return nc.convertHundreds(num)
	}

	return nc.convertUnderHundred(num)
}

// integerToWords converts an integer into its English word representation.
// Out-of-range values are read digit by digit.
func integerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return digitsToWords(strconv.Itoa(number))
	}

	if number == 0 {
		return "zero"
	}

	converter := newNumberConverter()

	var parts []string

	remaining := converter.processThousands(number, &parts)
	if remaining > 0 {
		parts = append(parts, converter.convertUnderThousand(remaining))
	}

	return strings.Join(parts, " ")
}

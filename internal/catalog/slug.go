package catalog

import (
	"math/rand"
	"strings"
	"unicode"
)

// translit rosyjskich/ukraińskich znaków na ASCII – slugi muszą być URL-safe,
// a nazwy z 1C przychodzą cyrylicą.
var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'і': "i", 'ї': "yi", 'є': "ye", 'ґ': "g",
}

// Slugify robi z nazwy URL-safe slug: translit, lowercase, [a-z0-9-].
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true // nie zaczynaj od myślnika
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if t, ok := cyrillic[r]; ok {
				b.WriteString(t)
				lastDash = t == ""
				continue
			}
			if unicode.IsSpace(r) || r == '-' || r == '_' || r == '/' || r == '.' {
				if !lastDash {
					b.WriteByte('-')
					lastDash = true
				}
			}
			// resztę znaków po prostu gubimy
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		s = "towar"
	}
	return s
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomSuffix zwraca krótki losowy sufiks do slugów przy kolizji.
func RandomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}

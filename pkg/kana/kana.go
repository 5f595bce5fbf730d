// Package kana converts full-width katakana to its half-width form.
//
// Registry records store phonetic names in half-width katakana while the
// identity feed carries full-width names, so every fuzzy match key goes
// through ToHalfWidth first.
package kana

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	combiningVoiced     = '\u3099'
	combiningSemiVoiced = '\u309a'
)

var table = []string{
	"ガ", "ｶﾞ", "ギ", "ｷﾞ", "グ", "ｸﾞ", "ゲ", "ｹﾞ", "ゴ", "ｺﾞ",
	"ザ", "ｻﾞ", "ジ", "ｼﾞ", "ズ", "ｽﾞ", "ゼ", "ｾﾞ", "ゾ", "ｿﾞ",
	"ダ", "ﾀﾞ", "ヂ", "ﾁﾞ", "ヅ", "ﾂﾞ", "デ", "ﾃﾞ", "ド", "ﾄﾞ",
	"バ", "ﾊﾞ", "ビ", "ﾋﾞ", "ブ", "ﾌﾞ", "ベ", "ﾍﾞ", "ボ", "ﾎﾞ",
	"パ", "ﾊﾟ", "ピ", "ﾋﾟ", "プ", "ﾌﾟ", "ペ", "ﾍﾟ", "ポ", "ﾎﾟ",
	"ヴ", "ｳﾞ", "ヷ", "ﾜﾞ", "ヺ", "ｦﾞ",
	"ア", "ｱ", "イ", "ｲ", "ウ", "ｳ", "エ", "ｴ", "オ", "ｵ",
	"カ", "ｶ", "キ", "ｷ", "ク", "ｸ", "ケ", "ｹ", "コ", "ｺ",
	"サ", "ｻ", "シ", "ｼ", "ス", "ｽ", "セ", "ｾ", "ソ", "ｿ",
	"タ", "ﾀ", "チ", "ﾁ", "ツ", "ﾂ", "テ", "ﾃ", "ト", "ﾄ",
	"ナ", "ﾅ", "ニ", "ﾆ", "ヌ", "ﾇ", "ネ", "ﾈ", "ノ", "ﾉ",
	"ハ", "ﾊ", "ヒ", "ﾋ", "フ", "ﾌ", "ヘ", "ﾍ", "ホ", "ﾎ",
	"マ", "ﾏ", "ミ", "ﾐ", "ム", "ﾑ", "メ", "ﾒ", "モ", "ﾓ",
	"ヤ", "ﾔ", "ユ", "ﾕ", "ヨ", "ﾖ",
	"ラ", "ﾗ", "リ", "ﾘ", "ル", "ﾙ", "レ", "ﾚ", "ロ", "ﾛ",
	"ワ", "ﾜ", "ヲ", "ｦ", "ン", "ﾝ",
	"ァ", "ｧ", "ィ", "ｨ", "ゥ", "ｩ", "ェ", "ｪ", "ォ", "ｫ",
	"ッ", "ｯ", "ャ", "ｬ", "ュ", "ｭ", "ョ", "ｮ",
	"。", "｡", "、", "､", "ー", "ｰ", "「", "｢", "」", "｣", "・", "･",
	"　", " ",
	// stray marks, applied after the base kana
	"゛", "ﾞ", "゜", "ﾟ",
	string(combiningVoiced), "ﾞ", string(combiningSemiVoiced), "ﾟ",
}

var replacer = strings.NewReplacer(table...)

// ToHalfWidth maps full-width katakana and Japanese punctuation to their
// half-width forms. Characters outside the table pass through unchanged and
// the result is stable under repeated application.
func ToHalfWidth(s string) string {
	if s == "" {
		return s
	}
	return replacer.Replace(compose(s))
}

// compose folds a katakana followed by a combining voicing mark into the
// precomposed letter, so "カ" plus U+3099 maps the same way as "ガ". Only those
// pairs are normalized; everything else is left byte-for-byte intact.
func compose(s string) string {
	if !strings.ContainsRune(s, combiningVoiced) && !strings.ContainsRune(s, combiningSemiVoiced) {
		return s
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if i+1 < len(runes) && isKatakana(r) && isCombiningMark(runes[i+1]) {
			pair := norm.NFC.String(string([]rune{r, runes[i+1]}))
			if utf8.RuneCountInString(pair) == 1 {
				b.WriteString(pair)
				i++
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isKatakana(r rune) bool {
	return r >= 'ァ' && r <= 'ヺ'
}

func isCombiningMark(r rune) bool {
	return r == combiningVoiced || r == combiningSemiVoiced
}

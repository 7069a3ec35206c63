package extract

import (
	"strings"
)

// textFromContent はPDFコンテンツストリームからテキスト描画オペレータ
// （Tj / TJ / ' / "）の文字列を取り出して連結します。
// 完全なレイアウト再現は目的ではなく、LLMに渡せる読みやすい
// プレーンテキストが得られれば十分です。
func textFromContent(data []byte) string {
	var out strings.Builder
	var pending []string
	lastNewline := true

	flush := func(sep string) {
		if len(pending) == 0 {
			if sep == "\n" && !lastNewline {
				out.WriteString("\n")
				lastNewline = true
			}
			return
		}
		for _, s := range pending {
			out.WriteString(s)
		}
		out.WriteString(sep)
		lastNewline = sep == "\n"
		pending = pending[:0]
	}

	i, n := 0, len(data)
	for i < n {
		c := data[i]
		switch {
		case c == '(':
			s, next := parseLiteralString(data, i)
			pending = append(pending, sanitize(s))
			i = next
		case c == '<' && i+1 < n && data[i+1] != '<':
			s, next := parseHexString(data, i)
			pending = append(pending, sanitize(s))
			i = next
		case c == '<':
			// 辞書の開始 "<<" は読み飛ばす
			i += 2
		case c == '%':
			for i < n && data[i] != '\n' {
				i++
			}
		case isWhitespace(c) || c == '[' || c == ']' || c == '{' || c == '}' || c == '>' || c == ')':
			i++
		case c == '/':
			// 名前トークンは引数なので保留中の文字列に影響しない
			i++
			for i < n && !isTokenEnd(data[i]) {
				i++
			}
		default:
			start := i
			for i < n && !isTokenEnd(data[i]) {
				i++
			}
			token := string(data[start:i])
			switch token {
			case "Tj", "TJ":
				flush(" ")
			case "'", "\"":
				// 改行してから描画するオペレータ
				flush("\n")
			case "Td", "TD", "T*", "ET", "BT":
				flush("\n")
			default:
				if !isNumericToken(token) && len(pending) > 0 {
					// テキスト描画以外のオペレータに到達したら引数の文字列は破棄する
					pending = pending[:0]
				}
			}
		}
	}
	flush(" ")
	return out.String()
}

// parseLiteralString は "(" から始まるリテラル文字列をデコードします。
// 返り値は文字列本体と、閉じ括弧の次のインデックスです。
func parseLiteralString(data []byte, start int) (string, int) {
	var b strings.Builder
	depth := 1
	i := start + 1
	n := len(data)
	for i < n && depth > 0 {
		c := data[i]
		switch c {
		case '\\':
			if i+1 >= n {
				i++
				continue
			}
			next := data[i+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
				i += 2
			case 'r':
				b.WriteByte('\r')
				i += 2
			case 't':
				b.WriteByte('\t')
				i += 2
			case 'b', 'f':
				i += 2
			case '(', ')', '\\':
				b.WriteByte(next)
				i += 2
			case '\n':
				// 行継続
				i += 2
			case '\r':
				i += 2
				if i < n && data[i] == '\n' {
					i++
				}
			default:
				if next >= '0' && next <= '7' {
					val := 0
					j := i + 1
					for k := 0; k < 3 && j < n && data[j] >= '0' && data[j] <= '7'; k++ {
						val = val*8 + int(data[j]-'0')
						j++
					}
					b.WriteByte(byte(val))
					i = j
				} else {
					b.WriteByte(next)
					i += 2
				}
			}
		case '(':
			depth++
			b.WriteByte(c)
			i++
		case ')':
			depth--
			if depth > 0 {
				b.WriteByte(c)
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

// parseHexString は "<" から始まる16進文字列をデコードします。
func parseHexString(data []byte, start int) (string, int) {
	var b strings.Builder
	i := start + 1
	n := len(data)
	var hi int = -1
	for i < n && data[i] != '>' {
		c := data[i]
		v := hexValue(c)
		if v >= 0 {
			if hi < 0 {
				hi = v
			} else {
				b.WriteByte(byte(hi*16 + v))
				hi = -1
			}
		}
		i++
	}
	if hi >= 0 {
		// 奇数桁の最終桁は下位4bitを0とみなす
		b.WriteByte(byte(hi * 16))
	}
	if i < n {
		i++
	}
	return b.String(), i
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// sanitize は制御文字等の表示不能なバイトを空白に置き換えます。
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isTokenEnd(c byte) bool {
	if isWhitespace(c) {
		return true
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumericToken(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.' {
			continue
		}
		return false
	}
	return true
}

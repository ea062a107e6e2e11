package model

import "strings"

// TokyoSuffix qualifies a ticker as listed on the Tokyo Stock Exchange.
const TokyoSuffix = ".T"

// ToTokyoTicker normalizes user input such as "7203" or "7203.t" to "7203.T".
func ToTokyoTicker(input string) string {
	t := strings.ToUpper(strings.TrimSpace(input))
	if strings.HasSuffix(t, TokyoSuffix) {
		return t
	}
	return t + TokyoSuffix
}

// DisplayTicker strips the exchange suffix so users see the bare code.
func DisplayTicker(ticker string) string {
	return strings.TrimSuffix(ticker, TokyoSuffix)
}

package service

import (
	"math/rand/v2"
	"strconv"
)

const ticketAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TicketSuffix renders the sequence part of a ticket id: the decimal number
// below 100, then bijective base-26 letters (100 -> A, 125 -> Z, 126 -> AA).
func TicketSuffix(n int64) string {
	if n < 100 {
		return strconv.FormatInt(n, 10)
	}
	n -= 99
	var buf []byte
	for n > 0 {
		n--
		buf = append(buf, byte('A'+n%26))
		n /= 26
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}

// GenerateTicketID combines six random characters with the suffix for n.
func GenerateTicketID(n int64) string {
	return randomCode(6) + "-" + TicketSuffix(n)
}

func randomCode(length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = ticketAlphabet[rand.IntN(len(ticketAlphabet))]
	}
	return string(buf)
}

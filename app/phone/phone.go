// Package phone normalizes Kenyan msisdns and classifies them by carrier.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

const countryCode = "254"

var ErrInvalidMsisdn = errors.New("invalid msisdn")

// Normalize coerces an input number into the ten-digit national form with a
// single leading zero (e.g. 0712345678). Accepted inputs: +254..., 254...,
// and 0... national numbers. Anything else fails.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "+")

	if strings.HasPrefix(s, countryCode) {
		s = "0" + s[len(countryCode):]
	}

	if len(s) != 10 || s[0] != '0' {
		return "", fmt.Errorf("%w: %q", ErrInvalidMsisdn, raw)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidMsisdn, raw)
		}
	}

	return s, nil
}

// DealerFormat renders a number the way the dealer airtime API expects:
// nine digits, no leading zero, no country code (712345678).
func DealerFormat(raw string) (string, error) {
	national, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return national[1:], nil
}

// E164Format renders a number in E.164 with a leading plus (+254712345678),
// the form the aggregator expects.
func E164Format(raw string) (string, error) {
	national, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return "+" + countryCode + national[1:], nil
}

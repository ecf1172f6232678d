package utils

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

var CountryCode = "US"

// NormalizePhoneNumber parses phoneNumber for countryCode and formats it as E.164.
func NormalizePhoneNumber(phoneNumber, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = CountryCode
	}
	p, err := libphonenumber.Parse(strings.TrimSpace(phoneNumber), countryCode)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

func NewTrue() *bool {
	b := true
	return &b
}

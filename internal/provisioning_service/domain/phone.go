package domain

import "strings"

// NormalizePhoneNumber brings a Turkish phone number into E.164 form with a
// leading +90. Separators are stripped, a leading 0 is replaced by the
// country code, and bare national numbers get the country code prepended.
func NormalizePhoneNumber(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	phone = replacer.Replace(strings.TrimSpace(phone))

	if strings.HasPrefix(phone, "+90") {
		return phone
	}
	if strings.HasPrefix(phone, "90") {
		return "+" + phone
	}
	if strings.HasPrefix(phone, "0") {
		return "+90" + phone[1:]
	}
	return "+90" + phone
}

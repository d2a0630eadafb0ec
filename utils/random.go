package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns n random bytes as upper-case hex.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NoticeID builds the id of an operator notice.
func NoticeID() (string, error) {
	code, err := GenerateCode(6)
	if err != nil {
		return "", err
	}
	return "notice_" + code, nil
}

package sign

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMissingField = errors.New("签名缺少必要字段")

const (
	keyAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // 去掉易混淆的 I/O/0/1
	keySegments   = 4
	keySegmentLen = 4
)

// GenerateLicenseKey 生成分段授权码（如 AK3F-9PQM-XXTV-28RD）
// 仅保证随机性，不保证唯一性，调用方写库时需对冲突重试
func GenerateLicenseKey() (string, error) {
	raw := make([]byte, keySegments*keySegmentLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}

	segments := make([]string, 0, keySegments)
	for i := 0; i < keySegments; i++ {
		var sb strings.Builder
		for j := 0; j < keySegmentLen; j++ {
			b := raw[i*keySegmentLen+j]
			sb.WriteByte(keyAlphabet[int(b)%len(keyAlphabet)])
		}
		segments = append(segments, sb.String())
	}

	return strings.Join(segments, "-"), nil
}

// Signer 网关请求签名器，持有商户凭据
type Signer struct {
	merchantCode string
	apiKey       string
}

func NewSigner(merchantCode, apiKey string) *Signer {
	return &Signer{
		merchantCode: merchantCode,
		apiKey:       apiKey,
	}
}

// SignRequest 计算出站账单签名
// 两段哈希：先把凭据与交易要素折叠成 md5，再整体 sha256
// 金额以 strconv.FormatInt 的十进制串参与拼接，校验侧必须按同样的串复算
func (s *Signer) SignRequest(transactionID string, totalAmount int64) (string, error) {
	if transactionID == "" {
		return "", ErrMissingField
	}
	return s.digest(transactionID + strconv.FormatInt(totalAmount, 10)), nil
}

// WebhookSignature 按回调侧拼接顺序（交易号 + 状态码，不含金额）计算签名
func (s *Signer) WebhookSignature(transactionID, statusCode string) (string, error) {
	if transactionID == "" || statusCode == "" {
		return "", ErrMissingField
	}
	return s.digest(transactionID + statusCode), nil
}

// VerifyWebhookSignature 校验回调签名
// 比较必须为常数时间，避免时序侧信道
func (s *Signer) VerifyWebhookSignature(transactionID, statusCode, supplied string) (bool, error) {
	expected, err := s.WebhookSignature(transactionID, statusCode)
	if err != nil {
		return false, err
	}
	supplied = strings.ToLower(supplied)
	if len(supplied) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1, nil
}

func (s *Signer) digest(tail string) string {
	inner := md5.Sum([]byte(s.apiKey + s.merchantCode + tail))
	outer := sha256.Sum256([]byte(hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])
}

package ingress

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"sort"
)

// VerifyWebhookSignature implements the Twilio-style X-Twilio-Signature
// check: HMAC-SHA1 over the request URL with all form params, sorted by
// key, concatenated as key+value directly onto the URL, base64-encoded,
// then compared to the header value in constant time.
func VerifyWebhookSignature(authToken, url string, form map[string][]string, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := url
	for _, k := range keys {
		for _, v := range form[k] {
			data += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

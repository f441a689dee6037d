package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"callrep/pkg/logger"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Twilio-Signature"

// ComputeSignature returns the base64 HMAC-SHA1 Twilio signs a webhook with:
// the full URL followed by every POST parameter name and value, sorted by name.
func ComputeSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	expected := ComputeSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// RequireTwilioSignature rejects webhooks whose signature does not match.
// The signed URL is rebuilt from publicURL because the service usually runs
// behind a proxy that rewrites scheme and host.
func RequireTwilioSignature(authToken, publicURL string) gin.HandlerFunc {
	base := strings.TrimRight(publicURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		fullURL := base + c.Request.URL.RequestURI()
		if !VerifySignature(authToken, fullURL, c.Request.PostForm, c.GetHeader(signatureHeader)) {
			logger.FromGin(c).Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

package techdetect

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)
	assert.NotNil(t, detector)
	assert.NotNil(t, detector.client)
}

func TestDetect_EmptyInputs(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	result := detector.Detect(nil, nil)

	assert.NotNil(t, result)
	assert.NotNil(t, result.Technologies)
	assert.Equal(t, "", result.Platform())
}

func TestDetect_WithCloudflareHeaders(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	headers := make(http.Header)
	headers.Set("CF-Ray", "1234567890abcdef-SYD")
	headers.Set("CF-Cache-Status", "HIT")
	headers.Set("Server", "cloudflare")

	result := detector.Detect(headers, nil)

	require.NotNil(t, result)
	_, hasCloudflare := result.Technologies["Cloudflare"]
	assert.True(t, hasCloudflare, "Cloudflare should be detected")
	// A CDN alone is not a platform
	assert.Equal(t, "", result.Platform())
}

func TestDetect_WithShopifySignatures(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	headers := make(http.Header)
	headers.Set("X-ShopId", "12345678")
	headers.Set("X-Shopify-Stage", "production")
	headers.Set("Content-Type", "text/html; charset=utf-8")

	body := []byte(`<!DOCTYPE html><html><head><link rel="preconnect" href="https://cdn.shopify.com"></head><body data-shopify="true"></body></html>`)

	result := detector.Detect(headers, body)

	require.NotNil(t, result)
	_, hasShopify := result.Technologies["Shopify"]
	assert.True(t, hasShopify, "Shopify should be detected")
}

func TestDetect_WithWordPressBody(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	headers := make(http.Header)
	headers.Set("X-Powered-By", "PHP/7.4")
	headers.Set("Link", `<https://example.com/wp-json/>; rel="https://api.w.org/"`)

	body := []byte(`<!DOCTYPE html><html><head><meta name="generator" content="WordPress 6.0"></head><body></body></html>`)

	result := detector.Detect(headers, body)

	// Signature coverage varies by wappalyzer version; detection must
	// at least run cleanly on realistic WordPress markup.
	require.NotNil(t, result)
	assert.NotNil(t, result.Technologies)
}

func TestResult_Platform(t *testing.T) {
	result := &Result{
		Technologies: map[string][]string{
			"WordPress":  {"CMS"},
			"Cloudflare": {"CDN", "Reverse proxies"},
			"PHP":        {"Programming languages"},
		},
	}
	assert.Equal(t, "WordPress", result.Platform())

	result = &Result{
		Technologies: map[string][]string{
			"Shopify":    {"Ecommerce"},
			"Cloudflare": {"CDN"},
		},
	}
	assert.Equal(t, "Shopify", result.Platform())

	result = &Result{Technologies: map[string][]string{"nginx": {"Web servers"}}}
	assert.Equal(t, "", result.Platform())
}

func TestResult_PlatformPrefersCMSOverFramework(t *testing.T) {
	result := &Result{
		Technologies: map[string][]string{
			"Next.js": {"Web frameworks"},
			"Sanity":  {"CMS"},
		},
	}
	assert.Equal(t, "Sanity", result.Platform())
}

func TestResult_PlatformDeterministicTieBreak(t *testing.T) {
	result := &Result{
		Technologies: map[string][]string{
			"Webflow": {"CMS"},
			"Drupal":  {"CMS"},
		},
	}
	// Alphabetical order keeps repeat audits stable.
	assert.Equal(t, "Drupal", result.Platform())
}

func TestDetect_ConcurrentAccess(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	headers := make(http.Header)
	headers.Set("Server", "nginx")

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			result := detector.Detect(headers, []byte("<html></html>"))
			assert.NotNil(t, result)
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

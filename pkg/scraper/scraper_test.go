package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldProcessURL(t *testing.T) {
	s := NewWithConfig(ScraperConfig{
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/"},
	})
	c := &crawl{host: "example.com", visited: map[string]bool{}}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := s.shouldProcessURL(c, tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCleanContent(t *testing.T) {
	got := cleanContent("  Welcome \n\n to the   guide. Cookie Policy ")
	assert.Equal(t, "Welcome to the guide.", got)
}

func TestScrapeWithMockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `
				<html>
					<head><title>Test Page</title></head>
					<body>
						<nav>Menu</nav>
						<main>
							<h1>Test Content</h1>
							<p>This is a test paragraph.</p>
							<a href="/page2.html">Link</a>
							<a href="https://elsewhere.example/page.html">External</a>
						</main>
						<script>var tracking = true;</script>
					</body>
				</html>`)
		case "/page2.html":
			fmt.Fprint(w, `<html><head><title>Second</title></head><body><p>Second page.</p> <a href="/">Home</a></body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var progress []string
	s := NewWithConfig(ScraperConfig{
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(url string) { progress = append(progress, url) },
	})

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	doc := docs[0]
	assert.Equal(t, server.URL+"/", doc.StoragePath)
	assert.Equal(t, "Test Page", doc.Title)
	assert.Contains(t, doc.Content, "Test Content")
	assert.Contains(t, doc.Content, "This is a test paragraph")
	assert.NotContains(t, doc.Content, "tracking")
	assert.Equal(t, 0, doc.Metadata["depth"])

	assert.Equal(t, "Second", docs[1].Title)
	assert.Equal(t, "Second page. Home", docs[1].Content)
	assert.Len(t, progress, 2)
}

func TestScrapeRespectsMaxPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><p>Page %s</p><a href="%s/next">next</a></body></html>`, r.URL.Path, r.URL.Path)
	}))
	defer server.Close()

	s := NewWithConfig(ScraperConfig{
		MaxDepth:          10,
		MaxPages:          3,
		RateLimit:         100,
		AllowedExtensions: []string{""},
	})

	docs, err := s.Scrape(context.Background(), server.URL+"/start")
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestScrapeRootFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	s := NewWithConfig(ScraperConfig{RateLimit: 100})

	_, err := s.Scrape(context.Background(), server.URL+"/")
	assert.Error(t, err)

	_, err = s.Scrape(context.Background(), "not a url")
	assert.Error(t, err)
}

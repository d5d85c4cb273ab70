package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const duckDuckGoPage = `<html><body>
<div class="result results_links web-result">
  <div class="links_main result__body">
    <h2 class="result__title"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fdeveloper.android.com%2Fjetpack%2Fcompose&amp;rut=x">Jetpack <b>Compose</b></a></h2>
    <a class="result__snippet" href="#">Build native Android UI with less code.</a>
  </div>
</div>
<div class="result results_links web-result">
  <div class="links_main result__body">
    <h2 class="result__title"><a class="result__a" href="https://stackoverflow.com/q/1">Recomposition loops</a></h2>
    <a class="result__snippet" href="#">Why does my composable recompose forever?</a>
  </div>
</div>
<div class="result results_links web-result">
  <div class="links_main result__body">
    <h2 class="result__title"><a class="result__a" href="https://example.com/3">Third</a></h2>
  </div>
</div>
</body></html>`

func TestParseDuckDuckGoHTML(t *testing.T) {
	results, err := parseDuckDuckGoHTML([]byte(duckDuckGoPage), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Jetpack Compose", results[0].Title)
	assert.Equal(t, "https://developer.android.com/jetpack/compose", results[0].URL)
	assert.Equal(t, "Build native Android UI with less code.", results[0].Snippet)
	assert.Equal(t, "https://stackoverflow.com/q/1", results[1].URL)
}

func TestWebSearch_DuckDuckGo(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, duckDuckGoPage)
	}))
	defer srv.Close()

	r := NewRegistry()
	r.MustRegister(NewWebSearchTool(WebSearchConfig{DuckDuckGoURL: srv.URL}))

	res := r.Invoke(context.Background(), "web_search", `{"query":"compose recomposition","top_k":5}`)
	require.True(t, res.OK, res.Output)
	assert.Equal(t, "compose recomposition", gotQuery)
	assert.Len(t, decodeOutput(t, res)["results"], 3)
	assert.Contains(t, res.Summary, "• Jetpack Compose\n  https://developer.android.com/jetpack/compose")
}

func TestWebSearch_StackExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "stackoverflow", r.URL.Query().Get("site"))
		assert.Equal(t, "2", r.URL.Query().Get("pagesize"))
		fmt.Fprint(w, `{"items":[
			{"title":"How to use &quot;remember&quot;","link":"https://stackoverflow.com/q/10","is_answered":true,"score":42},
			{"title":"Other","link":"https://stackoverflow.com/q/11","score":1}
		]}`)
	}))
	defer srv.Close()

	r := NewRegistry()
	r.MustRegister(NewWebSearchTool(WebSearchConfig{Engine: EngineStackExchange, StackExchangeURL: srv.URL}))

	res := r.Invoke(context.Background(), "web_search", `{"query":"remember","top_k":2}`)
	require.True(t, res.OK, res.Output)
	assert.Contains(t, res.Summary, `How to use "remember"`)
	assert.Contains(t, res.Summary, "score 42, answered")
}

func TestWebSearch_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := NewRegistry()
	r.MustRegister(NewWebSearchTool(WebSearchConfig{DuckDuckGoURL: srv.URL}))

	res := r.Invoke(context.Background(), "web_search", `{"query":"x"}`)
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "HTTP 429")

	res = r.Invoke(context.Background(), "web_search", `{"query":""}`)
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "invalid arguments")
}

func TestWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Guide</title></head><body><article><p>Use remember for state.</p></article></body></html>`)
	}))
	defer srv.Close()

	r := NewRegistry()
	r.MustRegister(NewWebFetchTool(nil, true))

	res := r.Invoke(context.Background(), "web_fetch", `{"url":"`+srv.URL+`","max_chars":3}`)
	require.True(t, res.OK, res.Output)
	out := decodeOutput(t, res)
	assert.Equal(t, "Guide", out["title"])
	assert.Equal(t, "Use", out["content"])
	assert.EqualValues(t, 200, out["status"])
}

func TestWebFetch_BlocksPrivateAddresses(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewWebFetchTool(nil, false))

	res := r.Invoke(context.Background(), "web_fetch", `{"url":"http://127.0.0.1:9/"}`)
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "private/internal")

	res = r.Invoke(context.Background(), "web_fetch", `{"url":"file:///etc/passwd"}`)
	assert.False(t, res.OK)
	assert.Contains(t, decodeOutput(t, res)["error"], "scheme")
}

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bizapi/internal/config"
	"bizapi/internal/news"
	"bizapi/internal/scraper"
)

const esgReply = "```json\n{\"company_name\":\"Acme\",\"esg_score\":72,\"summary\":\"Solid disclosure.\",\"key_initiatives\":[\"solar\",\"diversity\",\"audit\"]}\n```"

func TestESGScore_SecondCallServedFromCache(t *testing.T) {
	env := newTestEnv(t, esgReply)

	var bodies [2][]byte
	for i, want := range []string{"MISS", "HIT"} {
		resp, body := env.do(t, premium(httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=Acme", nil)))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d: %s", i+1, resp.StatusCode, body)
		}
		if got := resp.Header.Get("X-Cache"); got != want {
			t.Fatalf("call %d: expected X-Cache %s, got %q", i+1, want, got)
		}
		bodies[i] = body
	}

	if env.llm.Calls() != 1 {
		t.Fatalf("expected one completion call, got %d", env.llm.Calls())
	}
	if string(bodies[0]) != string(bodies[1]) {
		t.Fatalf("payloads differ:\n%s\n%s", bodies[0], bodies[1])
	}

	var out map[string]any
	decode(t, bodies[0], &out)
	if out["company_name"] != "Acme" || out["esg_score"] != float64(72) {
		t.Fatalf("unexpected payload: %s", bodies[0])
	}
}

func TestQuota_SixthFreeCallRejected(t *testing.T) {
	env := newTestEnv(t, esgReply)

	call := func(forwardedFor string) (*http.Response, []byte) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=Acme", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		return env.do(t, req)
	}

	for i := 1; i <= 5; i++ {
		resp, body := call("203.0.113.9, 10.0.0.1")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d: %s", i, resp.StatusCode, body)
		}
	}

	resp, body := call("203.0.113.9")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", resp.StatusCode, body)
	}
	var out ErrorResponse
	decode(t, body, &out)
	if out.Success || out.Code != "QUOTA_EXCEEDED" || !strings.Contains(out.Error, "premium") {
		t.Fatalf("unexpected envelope: %s", body)
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", resp.Header.Get("X-RateLimit-Remaining"))
	}

	// A different client still has its own budget.
	if resp, _ := call("198.51.100.4"); resp.StatusCode != http.StatusOK {
		t.Fatalf("independent client rejected: %d", resp.StatusCode)
	}
}

func TestQuota_PremiumBypassesCounter(t *testing.T) {
	env := newTestEnv(t, esgReply)

	for i := 0; i < 8; i++ {
		req := premium(httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=Acme", nil))
		req.Header.Set("X-Forwarded-For", "203.0.113.20")
		if resp, body := env.do(t, req); resp.StatusCode != http.StatusOK {
			t.Fatalf("premium call %d: expected 200, got %d: %s", i+1, resp.StatusCode, body)
		}
	}

	// The free plan value counts like no header at all.
	for i := 1; i <= 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=Acme", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.20")
		req.Header.Set("X-RapidAPI-Subscription", "basic")
		resp, _ := env.do(t, req)
		want := http.StatusOK
		if i == 6 {
			want = http.StatusTooManyRequests
		}
		if resp.StatusCode != want {
			t.Fatalf("free call %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}
}

func TestQuota_UnknownRoutesAreNotCounted(t *testing.T) {
	env := newTestEnv(t, esgReply)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.30")
		resp, body := env.do(t, req)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("call %d: expected 404, got %d: %s", i+1, resp.StatusCode, body)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=Acme", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.30")
	resp, body := env.do(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after unmatched calls, got %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "4" {
		t.Fatalf("expected remaining 4, got %q", resp.Header.Get("X-RateLimit-Remaining"))
	}
}

func TestQuota_ZeroFreeCallsIsPremiumOnly(t *testing.T) {
	env := newTestEnvWithConfig(t, esgReply, func(cfg *config.Config) {
		zero := 0
		cfg.Quota.FreeCalls = &zero
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=Acme", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.31")
	if resp, body := env.do(t, req); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for the first free call, got %d: %s", resp.StatusCode, body)
	}

	req = premium(httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=Acme", nil))
	req.Header.Set("X-Forwarded-For", "203.0.113.31")
	if resp, body := env.do(t, req); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected premium call to pass, got %d: %s", resp.StatusCode, body)
	}
}

func TestMissingParameters(t *testing.T) {
	env := newTestEnv(t, `{}`)

	cases := []struct {
		name string
		req  *http.Request
		code string
	}{
		{"esg", httptest.NewRequest(http.MethodGet, "/api/v1/esg-score", nil), "MISSING_PARAMETER"},
		{"esg blank", httptest.NewRequest(http.MethodGet, "/api/v1/esg-score?company_name=%20", nil), "MISSING_PARAMETER"},
		{"ai-scrape", httptest.NewRequest(http.MethodGet, "/api/v1/ai-scrape", nil), "MISSING_PARAMETER"},
		{"web-extract url", httptest.NewRequest(http.MethodGet, "/api/v1/web-extract?target=price", nil), "MISSING_PARAMETER"},
		{"web-extract target", httptest.NewRequest(http.MethodGet, "/api/v1/web-extract?url=https://example.com", nil), "MISSING_PARAMETER"},
		{"condition-check", httptest.NewRequest(http.MethodGet, "/api/v1/condition-check?url=https://example.com", nil), "MISSING_PARAMETER"},
		{"niche-data", httptest.NewRequest(http.MethodGet, "/api/v1/niche-data", nil), "MISSING_PARAMETER"},
		{"format-json", jsonRequest(http.MethodPost, "/api/v1/format-json", map[string]string{"text": "x"}), "MISSING_PARAMETER"},
		{"text-to-json", jsonRequest(http.MethodPost, "/api/v1/text-to-json", map[string]string{"format_instruction": "x"}), "MISSING_PARAMETER"},
		{"webhook fields", jsonRequest(http.MethodPost, "/api/v1/webhook/register", map[string]string{"target_url": "https://t"}), "MISSING_FIELDS"},
		{"bad json", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/text-to-json", strings.NewReader("{not json"))
			req.Header.Set("Content-Type", "application/json")
			return req
		}(), "BAD_REQUEST_INVALID_JSON"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, premium(tc.req))
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
			}
			var out ErrorResponse
			decode(t, body, &out)
			if out.Success || out.Code != tc.code {
				t.Fatalf("unexpected envelope: %s", body)
			}
		})
	}
	if env.llm.Calls() != 0 {
		t.Fatalf("invalid requests must not reach the model, got %d calls", env.llm.Calls())
	}
}

func TestFormatJSON_WrapsData(t *testing.T) {
	env := newTestEnv(t, "Here you go:\n```json\n{\"name\":\"Taro\",\"age\":30}\n```")

	req := jsonRequest(http.MethodPost, "/api/v1/format-json/", FormatJSONRequest{
		Text:              "Taro is thirty years old.",
		SchemaInstruction: "name and age",
	})
	resp, body := env.do(t, premium(req))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if got := strings.TrimSpace(string(body)); got != `{"status":"success","data":{"name":"Taro","age":30}}` {
		t.Fatalf("unexpected body: %s", got)
	}
	if resp.Header.Get("X-Cache") != "" {
		t.Fatalf("uncached task must not report X-Cache")
	}
}

func TestTextToJSON_ExtractionFailureEnvelope(t *testing.T) {
	env := newTestEnv(t, "Sorry, I cannot do that.")

	req := jsonRequest(http.MethodPost, "/api/v1/text-to-json", TextToJSONRequest{
		Text:              "Meeting on Friday",
		FormatInstruction: "extract the day",
	})
	resp, body := env.do(t, premium(req))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", resp.StatusCode, body)
	}
	var out ErrorResponse
	decode(t, body, &out)
	if out.Success || out.Code != "NO_JSON_FOUND" || out.Phase != "extraction" || out.Raw != "Sorry, I cannot do that." {
		t.Fatalf("unexpected envelope: %s", body)
	}
}

func TestTextToJSON_SchemaHintReachesPrompt(t *testing.T) {
	env := newTestEnv(t, `{"day":"Friday"}`)

	req := jsonRequest(http.MethodPost, "/api/v1/text-to-json", TextToJSONRequest{
		Text:              "Meeting on Friday",
		FormatInstruction: "extract the day",
		Schema:            `{"day": string}`,
	})
	resp, body := env.do(t, premium(req))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"day":"Friday"}` {
		t.Fatalf("unexpected response %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(env.llm.prompts[0], `{"day": string}`) || !strings.Contains(env.llm.prompts[0], "Meeting on Friday") {
		t.Fatalf("prompt missing schema or text:\n%s", env.llm.prompts[0])
	}
}

func TestTextToJSON_OversizedTextRejected(t *testing.T) {
	env := newTestEnv(t, `{"tail":"TAILMARKER"}`)

	req := jsonRequest(http.MethodPost, "/api/v1/text-to-json", TextToJSONRequest{
		Text:              strings.Repeat("x", 16000) + " TAILMARKER",
		FormatInstruction: "extract the tail",
	})
	resp, body := env.do(t, premium(req))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	var out ErrorResponse
	decode(t, body, &out)
	if out.Success || out.Code != "INPUT_TOO_LARGE" || out.Phase != "prompt" {
		t.Fatalf("unexpected envelope: %s", body)
	}
	if env.llm.Calls() != 0 {
		t.Fatalf("oversized text must not reach the model, got %d calls", env.llm.Calls())
	}
}

func TestFormatJSON_TextIsNotRewritten(t *testing.T) {
	env := newTestEnv(t, `{"name":"Alice","age":30}`)

	req := jsonRequest(http.MethodPost, "/api/v1/format-json", FormatJSONRequest{
		Text:              "  Name:  Alice  Age:  30\n",
		SchemaInstruction: "name and age",
	})
	resp, body := env.do(t, premium(req))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(env.llm.prompts[0], "Name:  Alice  Age:  30") {
		t.Fatalf("posted text was rewritten:\n%s", env.llm.prompts[0])
	}
}

func newShopServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/plan", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><style>p{}</style></head><body><nav>Menu</nav>
<h1>Pricing</h1><p>Basic plan:   4,980 yen / month</p></body></html>`))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!doctype html><html><head><title>Quarterly outlook</title></head><body>
<nav><a href="/">Home</a></nav>
<article><h1>Quarterly outlook</h1>
<p>The company expects steady growth in renewable energy installations across the region, driven by new regulation and falling panel prices over the next three quarters.</p>
<p>Management highlighted that supply chain pressure has eased considerably, allowing the team to shorten lead times for commercial customers and to expand service coverage.</p>
<p>Analysts noted that the balance sheet remains strong, with enough liquidity to fund the planned expansion without issuing new equity in the current fiscal year.</p>
</article></body></html>`))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestConditionCheck_UsesPageText(t *testing.T) {
	shop := newShopServer(t)
	env := newTestEnv(t, `{"condition_met":true,"current_status":"4,980 yen","reason":"below 5,000 yen"}`)

	resp, body := env.do(t, premium(httptest.NewRequest(http.MethodGet,
		"/api/v1/condition-check?url="+shop.URL+"/plan&condition=price+below+5000+yen", nil)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out map[string]any
	decode(t, body, &out)
	if out["condition_met"] != true {
		t.Fatalf("unexpected body: %s", body)
	}

	prompt := env.llm.prompts[0]
	if !strings.Contains(prompt, "Basic plan:\n4,980 yen / month") || strings.Contains(prompt, "Menu") {
		t.Fatalf("prompt did not carry the normalized page:\n%s", prompt)
	}
	if !strings.Contains(prompt, "price below 5000 yen") {
		t.Fatalf("prompt missing condition:\n%s", prompt)
	}
}

func TestWebExtract_FetchFailures(t *testing.T) {
	shop := newShopServer(t)
	env := newTestEnv(t, `{}`)

	cases := []struct {
		url, code string
	}{
		{shop.URL + "/gone", "SOURCE_FETCH_FAILED"},
		{"ftp://example.com/file", "INVALID_URL"},
		{"http://127.0.0.1:1/", "SOURCE_UNREACHABLE"},
	}
	for _, tc := range cases {
		resp, body := env.do(t, premium(httptest.NewRequest(http.MethodGet,
			"/api/v1/web-extract?target=company+name&url="+tc.url, nil)))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.url, resp.StatusCode, body)
		}
		var out ErrorResponse
		decode(t, body, &out)
		if out.Code != tc.code || out.Phase != "fetch" {
			t.Fatalf("%s: unexpected envelope: %s", tc.url, body)
		}
	}
	if env.llm.Calls() != 0 {
		t.Fatalf("fetch failures must not reach the model")
	}
}

func TestAIScrape(t *testing.T) {
	shop := newShopServer(t)
	env := newTestEnv(t, "")

	resp, body := env.do(t, premium(httptest.NewRequest(http.MethodGet, "/api/v1/ai-scrape?url="+shop.URL+"/article", nil)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out AIScrapeResponse
	decode(t, body, &out)
	if out.Status != "success" || out.URL != shop.URL+"/article" || !strings.Contains(out.Content, "renewable energy") {
		t.Fatalf("unexpected response: %s", body)
	}

	resp, body = env.do(t, premium(httptest.NewRequest(http.MethodGet, "/api/v1/ai-scrape?url="+shop.URL+"/gone", nil)))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unreachable page, got %d: %s", resp.StatusCode, body)
	}
	if env.llm.Calls() != 0 {
		t.Fatalf("ai-scrape must not call the model")
	}
}

type emptyArticles struct{}

func (emptyArticles) Article(context.Context, string) (*scraper.Article, error) {
	return nil, scraper.ErrNoContent
}

func TestAIScrape_NoContent(t *testing.T) {
	env := newTestEnv(t, "")
	env.svc.Articles = emptyArticles{}

	resp, body := env.do(t, premium(httptest.NewRequest(http.MethodGet, "/api/v1/ai-scrape?url=https://example.com", nil)))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", resp.StatusCode, body)
	}
	var out ErrorResponse
	decode(t, body, &out)
	if out.Code != "CONTENT_EXTRACTION_FAILED" {
		t.Fatalf("unexpected envelope: %s", body)
	}
}

func TestNicheData(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<rss><channel>
<item><title>Edge AI chips ship</title><link>https://n.example/1</link><source url="https://w">Wire</source></item>
<item><title>Edge AI chips ship</title><link>https://n.example/1</link></item>
<item><title>Robots at retail</title><link>https://n.example/2</link></item>
</channel></rss>`))
	}))
	defer feed.Close()

	env := newTestEnv(t, `{"summary":"Hardware is moving to the edge.","key_trends":["edge inference","retail robotics"]}`)
	env.svc.News = news.NewClient(feed.URL+"/?q=%s", "bizapi-test", 5*time.Second, 10)

	resp, body := env.do(t, premium(httptest.NewRequest(http.MethodGet, "/api/v1/niche-data?query=edge+ai", nil)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Query     string         `json:"query"`
		Summary   string         `json:"summary"`
		KeyTrends []string       `json:"key_trends"`
		Articles  []NicheArticle `json:"articles"`
	}
	decode(t, body, &out)
	if out.Query != "edge ai" || out.Summary == "" || len(out.KeyTrends) != 2 || len(out.Articles) != 2 {
		t.Fatalf("unexpected response: %s", body)
	}
	if !strings.Contains(env.llm.prompts[0], "- Edge AI chips ship (Wire)") {
		t.Fatalf("headlines missing from prompt:\n%s", env.llm.prompts[0])
	}
}

func TestNicheData_FeedUnreachable(t *testing.T) {
	env := newTestEnv(t, `{}`)
	resp, body := env.do(t, premium(httptest.NewRequest(http.MethodGet, "/api/v1/niche-data?query=ai", nil)))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
}

package main

// 端到端巡检：对运行中的站点依次验证健康检查、公开页面、HTML 表单登录、Bearer 令牌、
// 后台内容 CRUD 与发布、站点设置、访问统计以及联系留言流程。
// 用法：go run ./cmd/e2e -base http://127.0.0.1:8080 -email admin@example.com -password admin12345

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

var verbose bool
var baseURL *url.URL

// scenario 封装一次巡检过程中共享的客户端与令牌。
type scenario struct {
	client *http.Client
	token  string
}

func banner(title string) {
	log.Printf("\n=== %s ===", title)
}

func step(format string, args ...interface{}) {
	log.Printf(" • "+format, args...)
}

type contentRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsPublished bool   `json:"is_published"`
	SortOrder   int    `json:"sort_order"`
}

func main() {
	var (
		base     string
		email    string
		password string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://127.0.0.1:8080", "Base URL of the site")
	flag.StringVar(&email, "email", "admin@example.com", "Admin email used for login")
	flag.StringVar(&password, "password", "admin12345", "Admin password")
	flag.DurationVar(&timeout, "timeout", 20*time.Second, "HTTP timeout for requests")
	flag.BoolVar(&verbose, "v", true, "Verbose logging")
	flag.Parse()

	var err error
	baseURL, err = url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		log.Fatalf("parse base url: %v", err)
	}

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: timeout}
	// 保留登录后的 302，便于校验跳转目标
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	sc := &scenario{client: client}
	sc.run(email, password)
}

func (s *scenario) run(email, password string) {
	must := func(err error, msg string) {
		if err != nil {
			log.Fatalf("%s: %v", msg, err)
		}
	}

	log.Printf("E2E start -> %s", baseURL)

	banner("Health Checks")
	step("Probe /healthz")
	must(expectStatusOK(s.client, resolve("/healthz")), "healthz")
	step("Probe /metrics")
	must(expectStatusOK(s.client, resolve("/metrics")), "metrics")
	step("Render landing page")
	must(expectStatusOK(s.client, resolve("/")), "landing")
	step("Fetch public site settings")
	var site struct {
		Settings    map[string]string `json:"settings"`
		WhatsAppURL string            `json:"whatsapp_url"`
	}
	must(doJSON(s.client, "GET", resolve("/api/public/site").String(), nil, nil, 200, &site), "public site")
	if !strings.HasPrefix(site.WhatsAppURL, "https://wa.me/") {
		log.Fatalf("unexpected whatsapp_url %q", site.WhatsAppURL)
	}

	banner("HTML Form Login")
	step("Fetch /login and extract CSRF token")
	status, hidden, _, err := fetchHiddenForm(s.client, resolve("/login?next=/admin"))
	must(err, "login page")
	if status != 200 || hidden.Get("csrf_token") == "" {
		log.Fatalf("login page: status=%d csrf=%q", status, hidden.Get("csrf_token"))
	}
	form := cloneValues(hidden)
	form.Set("email", email)
	form.Set("password", password)
	step("POST /login (expect redirect to /admin)")
	resp, err := s.client.PostForm(resolve("/login").String(), form)
	must(err, "login submit")
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/admin" {
		log.Fatalf("login submit: status=%d location=%q", resp.StatusCode, resp.Header.Get("Location"))
	}
	step("GET /api/me with session cookie")
	var me map[string]any
	must(doJSON(s.client, "GET", resolve("/api/me").String(), nil, nil, 200, &me), "me via cookie")

	banner("API Login")
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	must(doJSON(s.client, "POST", resolve("/api/auth/login").String(),
		map[string]string{"email": email, "password": password}, nil, 200, &tok), "api login")
	if tok.AccessToken == "" || tok.TokenType != "Bearer" {
		log.Fatalf("api login returned no bearer token")
	}
	s.token = tok.AccessToken
	step("Wrong password is rejected")
	must(doJSON(s.client, "POST", resolve("/api/auth/login").String(),
		map[string]string{"email": email, "password": password + "x"}, nil, 401, nil), "api login wrong password")

	banner("Content Lifecycle")
	s.runContentLifecycle()

	banner("Site Settings")
	s.runSettings()

	banner("Visits & Analytics")
	s.runVisits()

	banner("Contact Messages")
	s.runContact()

	banner("Logout")
	must(doJSON(s.client, "POST", resolve("/api/auth/logout").String(), nil, s.bearer(), 204, nil), "logout")
	step("Revoked token is refused")
	must(doJSON(s.client, "GET", resolve("/api/me").String(), nil, s.bearer(), 401, nil), "me after logout")

	log.Printf("E2E finished OK")
}

func (s *scenario) bearer() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.token)
	return h
}

func (s *scenario) runContentLifecycle() {
	must := func(err error, msg string) {
		if err != nil {
			log.Fatalf("%s: %v", msg, err)
		}
	}
	title := fmt.Sprintf("E2E Service %d", time.Now().UnixNano())
	step("Create unpublished service %q", title)
	var created contentRow
	must(doJSON(s.client, "POST", resolve("/api/admin/services").String(), map[string]any{
		"title":        title,
		"description":  "created by e2e",
		"is_published": false,
	}, s.bearer(), 201, &created), "create service")

	step("Draft is hidden from the public list")
	if s.publicHasService(created.ID) {
		log.Fatalf("unpublished service %s is publicly visible", created.ID)
	}

	step("Batch publish")
	must(doJSON(s.client, "POST", resolve("/api/admin/services/batch").String(),
		map[string]any{"action": "publish", "ids": []string{created.ID}}, s.bearer(), 200, nil), "batch publish")
	if !s.publicHasService(created.ID) {
		log.Fatalf("published service %s missing from public list", created.ID)
	}

	step("Update title")
	var updated contentRow
	must(doJSON(s.client, "PUT", resolve("/api/admin/services/"+created.ID).String(), map[string]any{
		"title":        title + " (edited)",
		"description":  "updated by e2e",
		"is_published": true,
		"sort_order":   created.SortOrder,
	}, s.bearer(), 200, &updated), "update service")
	if !strings.HasSuffix(updated.Title, "(edited)") {
		log.Fatalf("update did not apply: %q", updated.Title)
	}

	step("Move to the front")
	var all []contentRow
	must(doJSON(s.client, "GET", resolve("/api/admin/services").String(), nil, s.bearer(), 200, &all), "list services")
	ids := []string{created.ID}
	for _, r := range all {
		if r.ID != created.ID {
			ids = append(ids, r.ID)
		}
	}
	must(doJSON(s.client, "POST", resolve("/api/admin/services/reorder").String(),
		map[string]any{"ids": ids}, s.bearer(), 204, nil), "reorder services")

	step("Delete")
	must(doJSON(s.client, "DELETE", resolve("/api/admin/services/"+created.ID).String(), nil, s.bearer(), 204, nil), "delete service")
	must(doJSON(s.client, "GET", resolve("/api/admin/services/"+created.ID).String(), nil, s.bearer(), 404, nil), "get deleted service")
}

func (s *scenario) publicHasService(id string) bool {
	var rows []contentRow
	if err := doJSON(s.client, "GET", resolve("/api/public/services").String(), nil, nil, 200, &rows); err != nil {
		log.Fatalf("public services: %v", err)
	}
	for _, r := range rows {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (s *scenario) runSettings() {
	var cur struct {
		Settings map[string]string `json:"settings"`
	}
	if err := doJSON(s.client, "GET", resolve("/api/admin/settings").String(), nil, s.bearer(), 200, &cur); err != nil {
		log.Fatalf("get settings: %v", err)
	}
	orig := cur.Settings["hero_title"]
	step("Update hero_title and restore it")
	if err := doJSON(s.client, "PUT", resolve("/api/admin/settings").String(),
		map[string]string{"hero_title": "E2E Hero"}, s.bearer(), 200, nil); err != nil {
		log.Fatalf("update settings: %v", err)
	}
	if err := doJSON(s.client, "PUT", resolve("/api/admin/settings").String(),
		map[string]string{"hero_title": orig}, s.bearer(), 200, nil); err != nil {
		log.Fatalf("restore settings: %v", err)
	}
	step("Unknown key is rejected")
	if err := doJSON(s.client, "PUT", resolve("/api/admin/settings").String(),
		map[string]string{"no_such_key": "x"}, s.bearer(), 400, nil); err != nil {
		log.Fatalf("unknown setting: %v", err)
	}
}

func (s *scenario) runVisits() {
	var visit struct {
		VisitorID  string `json:"visitor_id"`
		DeviceType string `json:"device_type"`
	}
	step("Record a visit")
	if err := doJSON(s.client, "POST", resolve("/api/visits").String(),
		map[string]string{"path": "/e2e"}, nil, 201, &visit); err != nil {
		log.Fatalf("record visit: %v", err)
	}
	step("Report duration for visitor %s", visit.VisitorID)
	if err := doJSON(s.client, "POST", resolve("/api/visits/duration").String(),
		map[string]any{"visitor_id": visit.VisitorID, "path": "/e2e", "duration": 42}, nil, 204, nil); err != nil {
		log.Fatalf("visit duration: %v", err)
	}
	var stats struct {
		Visitors struct {
			TotalVisits int `json:"total_visits"`
		} `json:"visitors"`
	}
	if err := doJSON(s.client, "GET", resolve("/api/admin/analytics?period=7d").String(), nil, s.bearer(), 200, &stats); err != nil {
		log.Fatalf("analytics: %v", err)
	}
	if stats.Visitors.TotalVisits < 1 {
		log.Fatalf("analytics reports no visits")
	}
}

func (s *scenario) runContact() {
	var sent struct {
		ID string `json:"id"`
	}
	step("Submit contact form")
	if err := doJSON(s.client, "POST", resolve("/api/contact").String(), map[string]string{
		"name": "E2E", "email": "e2e@example.com", "message": "Hello from the smoke test",
	}, nil, 201, &sent); err != nil {
		log.Fatalf("contact: %v", err)
	}
	step("Mark message read and delete it")
	if err := doJSON(s.client, "POST", resolve("/api/admin/messages/"+sent.ID+"/read").String(), nil, s.bearer(), 204, nil); err != nil {
		log.Fatalf("read message: %v", err)
	}
	if err := doJSON(s.client, "DELETE", resolve("/api/admin/messages/"+sent.ID).String(), nil, s.bearer(), 204, nil); err != nil {
		log.Fatalf("delete message: %v", err)
	}
}

func fetchHiddenForm(client *http.Client, u *url.URL) (int, url.Values, []byte, error) {
	resp, err := client.Get(u.String())
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil, err
	}
	values, err := parseHiddenInputs(body)
	return resp.StatusCode, values, body, err
}

// parseHiddenInputs 提取页面中所有 type=hidden 的 input。
func parseHiddenInputs(body []byte) (url.Values, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "input") {
			var name, value, inputType string
			for _, attr := range n.Attr {
				switch strings.ToLower(attr.Key) {
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				case "type":
					inputType = strings.ToLower(attr.Val)
				}
			}
			if name != "" && inputType == "hidden" {
				values.Add(name, value)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}
	walker(doc)
	return values, nil
}

func resolve(p string) *url.URL {
	ref, _ := url.Parse(p)
	return baseURL.ResolveReference(ref)
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vv := range v {
		out[k] = append([]string(nil), vv...)
	}
	return out
}

func doJSON(client *http.Client, method, urlStr string, body any, headers http.Header, want int, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
		if verbose {
			log.Printf("%s %s\n请求体: %s", method, urlStr, prettyJSON(b))
		}
	}
	req, err := http.NewRequest(method, urlStr, r)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s: status %d, want %d, body: %s", method, urlStr, resp.StatusCode, want, string(b))
	}
	b, _ := io.ReadAll(resp.Body)
	if verbose {
		log.Printf("%s %s -> %d\n响应体: %s", method, urlStr, resp.StatusCode, safeTrunc(prettyJSON(b), 2048))
	}
	if out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return err
		}
	}
	return nil
}

func expectStatusOK(client *http.Client, u *url.URL) error {
	resp, err := client.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("GET %s: status %d body: %s", u, resp.StatusCode, string(b))
	}
	return nil
}

func prettyJSON(b []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return string(b)
	}
	return buf.String()
}

func safeTrunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

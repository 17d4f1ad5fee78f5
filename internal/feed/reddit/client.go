// Package reddit реализует feed.Client поверх OAuth API Reddit.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/UkralStul/requestwatch/internal/domain"
	"github.com/UkralStul/requestwatch/internal/feed"
)

const (
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	// pageSize - максимум, который Reddit отдаёт за один запрос листинга.
	pageSize = 100
)

// Config - параметры подключения к API.
type Config struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	Username          string
	Password          string
	UserAgent         string
	RequestsPerMinute int
	Burst             int
	Timeout           time.Duration
}

// Client - клиент Reddit с ограничением частоты запросов.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

var _ feed.Client = (*Client)(nil)

// New собирает клиента. Токен запрашивается лениво при первом запросе и
// перезапрашивается по истечении: password grant не выдаёт refresh token.
func New(ctx context.Context, cfg Config, log logrus.FieldLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 90
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	base := &userAgentTransport{agent: cfg.UserAgent, next: http.DefaultTransport}
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base, Timeout: cfg.Timeout})
	source := oauth2.ReuseTokenSource(nil, &passwordSource{
		ctx: oauthCtx,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInHeader},
		},
		username: cfg.Username,
		password: cfg.Password,
	})

	return &Client{
		http: &http.Client{
			Transport: &oauth2.Transport{Source: source, Base: base},
			Timeout:   cfg.Timeout,
			// Reddit перенаправляет /about несуществующего сообщества на поиск.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.Burst),
		log:     log,
	}
}

type passwordSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	return s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}

// === Transport ===

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("GET %s: %w: %w", path, domain.ErrUnreachable, err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w: %v", path, domain.ErrMalformedRequest, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w: %w", path, domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w: %w", path, domain.ErrUnreachable, err)
	}
	if err := statusError(resp.StatusCode); err != nil {
		c.log.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).Debug("reddit request failed")
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("GET %s: %w: invalid json", path, domain.ErrUnreachable)
	}
	return body, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 300 && code < 400, code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusForbidden:
		return domain.ErrAccessDenied
	case code == http.StatusBadRequest:
		return domain.ErrMalformedRequest
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	return fmt.Errorf("%w: status %d", domain.ErrUnreachable, code)
}

// === Posts ===

func (c *Client) ListNewest(ctx context.Context, source string, limit int) ([]domain.FeedPost, error) {
	posts := make([]domain.FeedPost, 0, limit)
	after := ""
	for len(posts) < limit {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(min(pageSize, limit-len(posts))))
		if after != "" {
			q.Set("after", after)
		}
		body, err := c.get(ctx, "/r/"+url.PathEscape(source)+"/new", q)
		if err != nil {
			return nil, err
		}

		children := gjson.GetBytes(body, "data.children").Array()
		for _, child := range children {
			posts = append(posts, parsePost(child.Get("data")))
		}
		after = gjson.GetBytes(body, "data.after").String()
		if after == "" || len(children) == 0 {
			break
		}
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (c *Client) LoadPost(ctx context.Context, id string) (*domain.FeedPost, error) {
	body, err := c.get(ctx, "/by_id/t3_"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	child := gjson.GetBytes(body, "data.children.0.data")
	if !child.Exists() {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	// Удалённый автором пост остаётся в выдаче с заглушкой вместо текста.
	if child.Get("removed_by_category").String() == "deleted" {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	post := parsePost(child)
	return &post, nil
}

func parsePost(data gjson.Result) domain.FeedPost {
	return domain.FeedPost{
		ID:         data.Get("id").String(),
		URL:        data.Get("url").String(),
		Title:      data.Get("title").String(),
		Permalink:  data.Get("permalink").String(),
		AuthorName: authorName(data.Get("author").String()),
		CreatedAt:  unix(data.Get("created_utc")),
	}
}

func (c *Client) TopLevelComments(ctx context.Context, postID string) ([]domain.Comment, error) {
	q := url.Values{}
	q.Set("depth", "1")
	body, err := c.get(ctx, "/comments/"+url.PathEscape(postID), q)
	if err != nil {
		return nil, err
	}

	var comments []domain.Comment
	for _, child := range gjson.GetBytes(body, "1.data.children").Array() {
		if child.Get("kind").String() != "t1" {
			continue
		}
		data := child.Get("data")
		comments = append(comments, domain.Comment{
			AuthorName:  authorName(data.Get("author").String()),
			AuthorFlair: data.Get("author_flair_text").String(),
			Body:        data.Get("body").String(),
		})
	}
	return comments, nil
}

// === Communities ===

func (c *Client) LoadCommunity(ctx context.Context, handle string) (*domain.Community, error) {
	body, err := c.get(ctx, "/r/"+url.PathEscape(handle)+"/about", nil)
	if err != nil {
		return nil, err
	}
	if kind := gjson.GetBytes(body, "kind").String(); kind != "t5" {
		return nil, fmt.Errorf("community %s: %w", handle, domain.ErrNotFound)
	}

	data := gjson.GetBytes(body, "data")
	icon := data.Get("community_icon").String()
	if icon == "" {
		icon = data.Get("icon_img").String()
	}
	return &domain.Community{
		Handle:      data.Get("display_name").String(),
		Type:        data.Get("subreddit_type").String(),
		Subscribers: data.Get("subscribers").Int(),
		Adult:       data.Get("over18").Bool(),
		IconURL:     icon,
		CreatedAt:   unix(data.Get("created_utc")),
	}, nil
}

func (c *Client) ListModerators(ctx context.Context, handle string) ([]string, error) {
	body, err := c.get(ctx, "/r/"+url.PathEscape(handle)+"/about/moderators", nil)
	if err != nil {
		return nil, err
	}
	mods := []string{}
	for _, name := range gjson.GetBytes(body, "data.children.#.name").Array() {
		mods = append(mods, "u/"+name.String())
	}
	return mods, nil
}

// === Authors ===

func (c *Client) LoadAuthor(ctx context.Context, name string) (domain.Author, error) {
	if name == "" {
		return domain.DeletedAuthor{}, nil
	}

	body, err := c.get(ctx, "/user/"+url.PathEscape(name)+"/about", nil)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DeletedAuthor{}, nil
		}
		return nil, err
	}

	data := gjson.GetBytes(body, "data")
	if data.Get("is_suspended").Bool() {
		return domain.SuspendedAuthor{Name: data.Get("name").String()}, nil
	}
	karma := data.Get("link_karma").Int() + data.Get("comment_karma").Int()
	if total := data.Get("total_karma"); total.Exists() {
		karma = total.Int()
	}
	return domain.ActiveAuthor{
		Name:      data.Get("name").String(),
		ID:        data.Get("id").String(),
		CreatedAt: unix(data.Get("created_utc")),
		Karma:     karma,
		IconURL:   data.Get("icon_img").String(),
	}, nil
}

// === Helpers ===

func authorName(name string) string {
	if name == "[deleted]" {
		return ""
	}
	return name
}

func unix(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	sec := v.Float()
	return time.Unix(int64(sec), 0).UTC()
}

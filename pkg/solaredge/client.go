package solaredge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solarweb-terminal/pkg/core"
)

const (
	defaultBaseURL = "https://monitoring.solaredge.com"

	ssoCookieName  = "SolarEdge_SSO-1.4"
	csrfCookieName = "CSRF-TOKEN"
	csrfHeaderName = "X-CSRF-TOKEN"

	// Sessions are renewed this long before the SSO cookie's declared
	// max-age runs out, to cover clock drift and in-flight requests
	// close to expiry.
	loginSafetyMargin = 10 * time.Minute
)

// DefaultTimeout is the per-request timeout used by the CLI commands.
var DefaultTimeout = 10 * time.Second

// Client talks to the SolarEdge monitoring portal on behalf of a single
// site. The supplied http.Client must carry a cookie jar; the jar is the
// only place session cookies live, the Client never keeps its own copy.
//
// A Client assumes a single logical caller and is not safe for concurrent
// use.
type Client struct {
	username string
	password string
	siteID   string

	httpClient *http.Client
	timeout    time.Duration
	baseURL    string

	equipment  map[int]Equipment
	lastLogin  time.Time
	sessionTTL time.Duration
}

// NewClient creates a portal client. No network activity happens until the
// first operation is called.
func NewClient(username, password, siteID string, httpClient *http.Client, timeout time.Duration) *Client {
	return &Client{
		username:   username,
		password:   password,
		siteID:     siteID,
		httpClient: httpClient,
		timeout:    timeout,
		baseURL:    defaultBaseURL,
		equipment:  make(map[int]Equipment),
	}
}

// Login establishes a portal session. When the SSO cookie is still in the
// jar and the previous login is younger than the cookie's max-age minus a
// safety margin, the existing session is reused without a request. A
// forced login drops the equipment cache first; equipment layout could
// have changed with the session.
func (c *Client) Login(ctx context.Context) error {
	if cookie := c.findCookie(ssoCookieName); cookie != nil &&
		c.sessionTTL > 0 &&
		time.Since(c.lastLogin) < c.sessionTTL-loginSafetyMargin {
		core.Logger.Debug().Msg("Skipping login, existing SSO session is still valid")
		return nil
	}

	c.equipment = make(map[int]Equipment)

	form := url.Values{
		"j_username": {c.username},
		"j_password": {c.password},
	}

	endpoint := c.baseURL + "/solaredge-apigw/api/login"
	resp, body, err := c.postForm(ctx, endpoint, form, nil)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.lastLogin = time.Now()
	c.sessionTTL = ssoMaxAge(resp)
	return nil
}

// GetEquipment returns the equipment of the installation keyed by
// equipment id. The result is cached; the cache stays authoritative until
// a forced login invalidates it.
func (c *Client) GetEquipment(ctx context.Context) (map[int]Equipment, error) {
	core.Logger.Debug().Msgf("Fetching equipment for site: %s", c.siteID)

	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	if len(c.equipment) > 0 {
		core.Logger.Debug().Msgf("Using cached %d equipment for site: %s", len(c.equipment), c.siteID)
		return c.equipment, nil
	}

	endpoint := fmt.Sprintf("%s/solaredge-apigw/api/sites/%s/layout/logical", c.baseURL, c.siteID)
	resp, body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var layout layoutResponse
	if err := json.Unmarshal(body, &layout); err != nil {
		return nil, &FetchError{Message: "decoding logical layout", Err: err}
	}
	if layout.LogicalTree == nil {
		return nil, &FetchError{Message: "logical layout has no logicalTree"}
	}

	equipment, err := flattenLayout(layout.LogicalTree.Children)
	if err != nil {
		return nil, err
	}

	c.equipment = equipment
	core.Logger.Debug().Msgf("Found %d equipment for site: %s", len(c.equipment), c.siteID)
	return c.equipment, nil
}

// GetEnergyData returns production energy per equipment, one sample per
// reporting interval (15 minutes) of the requested window. Samples come
// back in no particular order; sort by StartTime when chronology matters.
func (c *Client) GetEnergyData(ctx context.Context, unit TimeUnit) ([]EnergySample, error) {
	core.Logger.Debug().Msgf("Fetching energy data for site: %s", c.siteID)

	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	// A login can return 200 without a workable session; the anti-forgery
	// token is the tell.
	csrf := c.findCookie(csrfCookieName)
	if csrf == nil || csrf.Value == "" {
		return nil, &AuthError{Message: "CSRF-TOKEN cookie not found"}
	}

	form := url.Values{
		"fieldId":  {c.siteID},
		"timeUnit": {strconv.Itoa(int(unit))},
	}

	endpoint := c.baseURL + "/solaredge-web/p/playbackData"
	resp, body, err := c.postForm(ctx, endpoint, form, map[string]string{csrfHeaderName: csrf.Value})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	samples, err := decodePlayback(body)
	if err != nil {
		return nil, err
	}

	core.Logger.Debug().Msgf("Found %d energy samples for site: %s", len(samples), c.siteID)
	return samples, nil
}

// flattenLayout walks the layout tree with an explicit worklist;
// installations can nest optimizers arbitrarily deep. Duplicate ids
// overwrite earlier entries, the last visited node wins.
func flattenLayout(roots []layoutNode) (map[int]Equipment, error) {
	equipment := make(map[int]Equipment)

	stack := append([]layoutNode(nil), roots...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node.Data == nil {
			return nil, &FetchError{Message: "layout node has no data object"}
		}
		id, ok := nodeID(node.Data)
		if !ok {
			return nil, &FetchError{Message: "layout node data has no integer id"}
		}
		equipment[id] = node.Data

		stack = append(stack, node.Children...)
	}

	return equipment, nil
}

func nodeID(data Equipment) (int, bool) {
	raw, ok := data["id"]
	if !ok {
		return 0, false
	}
	f, ok := raw.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// findCookie reads a cookie for the portal origin from the http client's
// jar.
func (c *Client) findCookie(name string) *http.Cookie {
	if c.httpClient.Jar == nil {
		return nil
	}
	origin, err := url.Parse(c.baseURL)
	if err != nil {
		return nil
	}
	for _, cookie := range c.httpClient.Jar.Cookies(origin) {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// ssoMaxAge reads the declared lifetime of the SSO session cookie from a
// login response. Cookies served back out of a jar carry only name and
// value, so the max-age has to be captured here.
func ssoMaxAge(resp *http.Response) time.Duration {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == ssoCookieName && cookie.MaxAge > 0 {
			return time.Duration(cookie.MaxAge) * time.Second
		}
	}
	return 0
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, headers map[string]string) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.do(req)
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	core.Logger.Debug().Msgf("Got %d from %s", resp.StatusCode, req.URL)
	return resp, body, nil
}

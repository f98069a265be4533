package solaredge

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"
)

const playbackFixture = `{timeUnit:5,reportersData:{'Mon Jan 02 15:04:05 GMT 2006':{g1:[{key:'7',value:'123.4'}]}}}`

const layoutFixture = `{
	"logicalTree": {
		"data": {"id": 0, "name": "site"},
		"children": [
			{
				"data": {"id": 1, "name": "Inverter 1", "type": "INVERTER"},
				"children": [
					{"data": {"id": 2, "name": "String 1.1", "type": "STRING"}, "children": [
						{"data": {"id": 3, "name": "Optimizer 1.1.1", "type": "POWER_BOX"}, "children": []}
					]}
				]
			},
			{"data": {"id": 4, "name": "Inverter 2", "type": "INVERTER"}, "children": []}
		]
	}
}`

// portalServer fakes the three portal endpoints and counts the requests
// each one receives.
type portalServer struct {
	srv *httptest.Server

	loginCount    int
	layoutCount   int
	playbackCount int

	loginStatus    int
	ssoMaxAge      int
	setCSRF        bool
	layoutStatus   int
	layoutBody     string
	playbackStatus int
	playbackBody   string

	lastLoginForm    url.Values
	lastCSRFHeader   string
	lastPlaybackForm url.Values
}

func newPortalServer(t *testing.T) *portalServer {
	t.Helper()

	ps := &portalServer{
		loginStatus:    http.StatusOK,
		ssoMaxAge:      4 * 3600,
		setCSRF:        true,
		layoutStatus:   http.StatusOK,
		layoutBody:     layoutFixture,
		playbackStatus: http.StatusOK,
		playbackBody:   playbackFixture,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/solaredge-apigw/api/login", func(w http.ResponseWriter, r *http.Request) {
		ps.loginCount++
		r.ParseForm()
		ps.lastLoginForm = r.PostForm

		if ps.loginStatus != http.StatusOK {
			http.Error(w, "login denied", ps.loginStatus)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "SolarEdge_SSO-1.4", Value: "sso-session", Path: "/", MaxAge: ps.ssoMaxAge})
		if ps.setCSRF {
			http.SetCookie(w, &http.Cookie{Name: "CSRF-TOKEN", Value: "csrf-token-1", Path: "/"})
		}
	})
	mux.HandleFunc("/solaredge-apigw/api/sites/", func(w http.ResponseWriter, r *http.Request) {
		ps.layoutCount++

		if ps.layoutStatus != http.StatusOK {
			http.Error(w, "layout error", ps.layoutStatus)
			return
		}
		w.Write([]byte(ps.layoutBody))
	})
	mux.HandleFunc("/solaredge-web/p/playbackData", func(w http.ResponseWriter, r *http.Request) {
		ps.playbackCount++
		r.ParseForm()
		ps.lastCSRFHeader = r.Header.Get("X-CSRF-TOKEN")
		ps.lastPlaybackForm = r.PostForm

		if ps.playbackStatus != http.StatusOK {
			http.Error(w, "playback error", ps.playbackStatus)
			return
		}
		w.Write([]byte(ps.playbackBody))
	})

	ps.srv = httptest.NewServer(mux)
	t.Cleanup(ps.srv.Close)

	return ps
}

func newTestClient(t *testing.T, ps *portalServer) *Client {
	t.Helper()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)

	client := NewClient("user@example.com", "secret", "1234567", &http.Client{Jar: jar}, 5*time.Second)
	client.baseURL = ps.srv.URL

	return client
}

func TestLoginSendsCredentials(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	require.NoError(t, client.Login(context.Background()))

	assert.Equal(t, 1, ps.loginCount)
	assert.Equal(t, "user@example.com", ps.lastLoginForm.Get("j_username"))
	assert.Equal(t, "secret", ps.lastLoginForm.Get("j_password"))
	assert.False(t, client.lastLogin.IsZero())
	assert.Equal(t, 4*time.Hour, client.sessionTTL)
}

func TestLoginSkipsWithinSessionWindow(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	require.NoError(t, client.Login(context.Background()))
	require.NoError(t, client.Login(context.Background()))

	assert.Equal(t, 1, ps.loginCount, "second login within the session window must not hit the portal")
}

func TestLoginForcedAfterWindowClearsEquipment(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	_, err := client.GetEquipment(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, client.equipment)

	// Age the session past max-age minus the safety margin
	client.lastLogin = time.Now().Add(-4 * time.Hour)

	require.NoError(t, client.Login(context.Background()))

	assert.Equal(t, 2, ps.loginCount)
	assert.Empty(t, client.equipment, "forced login must drop the equipment cache")
}

func TestLoginSkipsOnlyWithCookiePresent(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	// A recorded login time alone is not enough, the SSO cookie has to be
	// in the jar too.
	client.lastLogin = time.Now()
	client.sessionTTL = 4 * time.Hour

	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, 1, ps.loginCount)
}

func TestLoginFailure(t *testing.T) {
	ps := newPortalServer(t)
	ps.loginStatus = http.StatusUnauthorized
	client := newTestClient(t, ps)

	err := client.Login(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, authErr.Body, "login denied")
	assert.True(t, client.lastLogin.IsZero(), "failed login must not record a login time")
}

func TestGetEquipmentFlattensTree(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	equipment, err := client.GetEquipment(context.Background())
	require.NoError(t, err)

	// Top-level children and all descendants, the synthetic root is not
	// part of the inventory.
	require.Len(t, equipment, 4)
	assert.Equal(t, "Inverter 1", equipment[1]["name"])
	assert.Equal(t, "String 1.1", equipment[2]["name"])
	assert.Equal(t, "Optimizer 1.1.1", equipment[3]["name"])
	assert.Equal(t, "Inverter 2", equipment[4]["name"])
}

func TestGetEquipmentDuplicateIDLastWins(t *testing.T) {
	ps := newPortalServer(t)
	ps.layoutBody = `{
		"logicalTree": {
			"children": [
				{"data": {"id": 7, "name": "first"}, "children": [
					{"data": {"id": 7, "name": "second"}, "children": []}
				]}
			]
		}
	}`
	client := newTestClient(t, ps)

	equipment, err := client.GetEquipment(context.Background())
	require.NoError(t, err)

	require.Len(t, equipment, 1)
	assert.Equal(t, "second", equipment[7]["name"])
}

func TestGetEquipmentUsesCache(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	first, err := client.GetEquipment(context.Background())
	require.NoError(t, err)
	second, err := client.GetEquipment(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ps.layoutCount, "cached equipment must not trigger a second fetch")
	assert.Equal(t, first, second)
}

func TestGetEquipmentMalformedTree(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	tests := []struct {
		name string
		body string
	}{
		{"missing logicalTree", `{"other": {}}`},
		{"node without data", `{"logicalTree": {"children": [{"children": []}]}}`},
		{"node without id", `{"logicalTree": {"children": [{"data": {"name": "x"}, "children": []}]}}`},
		{"non-integer id", `{"logicalTree": {"children": [{"data": {"id": 1.5}, "children": []}]}}`},
		{"not json", `<html>maintenance</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps.layoutBody = tt.body
			client.equipment = make(map[int]Equipment)

			_, err := client.GetEquipment(context.Background())

			var fetchErr *FetchError
			require.ErrorAs(t, err, &fetchErr)
		})
	}
}

func TestGetEquipmentHTTPError(t *testing.T) {
	ps := newPortalServer(t)
	ps.layoutStatus = http.StatusInternalServerError
	client := newTestClient(t, ps)

	_, err := client.GetEquipment(context.Background())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Empty(t, client.equipment, "failed fetch must not populate the cache")
}

func TestGetEnergyData(t *testing.T) {
	ps := newPortalServer(t)
	client := newTestClient(t, ps)

	samples, err := client.GetEnergyData(context.Background(), TimeUnitWeek)
	require.NoError(t, err)

	require.Len(t, samples, 1)
	expected := time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)
	assert.True(t, samples[0].StartTime.Equal(expected), "got %v", samples[0].StartTime)
	assert.Equal(t, map[int]float64{7: 123.4}, samples[0].Values)

	assert.Equal(t, "csrf-token-1", ps.lastCSRFHeader)
	assert.Equal(t, "1234567", ps.lastPlaybackForm.Get("fieldId"))
	assert.Equal(t, "5", ps.lastPlaybackForm.Get("timeUnit"))
}

func TestGetEnergyDataMultipleGroups(t *testing.T) {
	ps := newPortalServer(t)
	ps.playbackBody = `{timeUnit:4,reportersData:{` +
		`'Mon Jan 02 15:04:05 GMT 2006':{g1:[{key:'7',value:'123.4'}],g2:[{key:'8',value:'0.5'}]},` +
		`'Mon Jan 02 15:19:05 GMT 2006':{g1:[{key:'7',value:'130.0'}]}}}`
	client := newTestClient(t, ps)

	samples, err := client.GetEnergyData(context.Background(), TimeUnitDay)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	byTime := make(map[time.Time]map[int]float64, len(samples))
	for _, sample := range samples {
		byTime[sample.StartTime] = sample.Values
	}

	first := time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)
	second := time.Date(2006, time.January, 2, 15, 19, 5, 0, time.UTC)
	assert.Equal(t, map[int]float64{7: 123.4, 8: 0.5}, byTime[first], "grouping labels must be flattened into one mapping")
	assert.Equal(t, map[int]float64{7: 130.0}, byTime[second])
}

func TestGetEnergyDataMissingCSRF(t *testing.T) {
	ps := newPortalServer(t)
	ps.setCSRF = false
	client := newTestClient(t, ps)

	_, err := client.GetEnergyData(context.Background(), TimeUnitWeek)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 0, ps.playbackCount, "missing anti-forgery token must short-circuit before the request")
}

func TestGetEnergyDataHTTPError(t *testing.T) {
	ps := newPortalServer(t)
	ps.playbackStatus = http.StatusBadGateway
	client := newTestClient(t, ps)

	require.NoError(t, client.Login(context.Background()))
	loginTime := client.lastLogin

	_, err := client.GetEnergyData(context.Background(), TimeUnitWeek)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
	assert.Equal(t, loginTime, client.lastLogin, "failed fetch must not touch the login timestamp")
}

func TestGetEnergyDataStaleFormat(t *testing.T) {
	ps := newPortalServer(t)
	ps.playbackBody = `{reportersData:<<<not even close>>>}`
	client := newTestClient(t, ps)

	_, err := client.GetEnergyData(context.Background(), TimeUnitWeek)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestNewClientDoesNoNetworkIO(t *testing.T) {
	ps := newPortalServer(t)
	newTestClient(t, ps)

	assert.Equal(t, 0, ps.loginCount+ps.layoutCount+ps.playbackCount)
}

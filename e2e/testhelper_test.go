package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/showrunner/internal/auth"
	"github.com/makeasinger/showrunner/internal/handler"
	"github.com/makeasinger/showrunner/internal/middleware"
	"github.com/makeasinger/showrunner/internal/server"
	"github.com/makeasinger/showrunner/internal/service"
	"github.com/makeasinger/showrunner/internal/store"
	"github.com/makeasinger/showrunner/internal/testsupport"
	ws "github.com/makeasinger/showrunner/internal/websocket"
)

const (
	testJWTSecret      = "test-secret-for-e2e"
	testCallbackSecret = "callback-secret"
)

// testApp holds the app and the fakes behind it
type testApp struct {
	app      *fiber.App
	store    *store.Store
	text     *testsupport.FakeText
	music    *testsupport.FakeMusic
	image    *testsupport.FakeImage
	enqueuer *testsupport.FakeEnqueuer
}

// setupApp builds the production route table over a temp SQLite store and
// in-memory provider fakes.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	st := testsupport.NewStore(t)
	text := testsupport.NewFakeText()
	music := testsupport.NewFakeMusic()
	image := &testsupport.FakeImage{URL: "https://cdn.example.com/cover.png"}
	enqueuer := &testsupport.FakeEnqueuer{}

	hub := ws.NewHub()
	go hub.Run()

	validate := validator.New()
	opts := service.Options{
		TrackCount:      6,
		PrimaryTrack:    1,
		CallbackBaseURL: "https://show.example.com",
		CallbackSecret:  testCallbackSecret,
	}

	finalizer := service.NewFinalizer(st, hub, opts)
	trackService := service.NewTrackService(st, text, music, enqueuer, finalizer, hub, opts)
	showService := service.NewShowService(st, text, image, trackService, hub, opts)
	callbackService := service.NewCallbackService(st, finalizer, validate, hub, opts)
	batchService := service.NewBatchService(st, enqueuer, opts)

	authenticator := auth.NewAuthenticator(nil, testJWTSecret)

	app := server.New(server.Handlers{
		Auth:      handler.NewAuthHandler(authenticator),
		Show:      handler.NewShowHandler(showService, validate),
		Track:     handler.NewTrackHandler(trackService, batchService, validate),
		Callback:  handler.NewCallbackHandler(callbackService),
		WebSocket: handler.NewWebSocketHandler(hub),
	}, server.Options{
		APIAuth: middleware.Authenticate(authenticator),
		Health: func() fiber.Map {
			return fiber.Map{"store": true, "text": false, "music": false}
		},
	})

	return &testApp{
		app:      app,
		store:    st,
		text:     text,
		music:    music,
		image:    image,
		enqueuer: enqueuer,
	}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueLegacyToken(testJWTSecret, "test-user-123", "test@example.com", 0)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode returns error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func callbackPath(projectID string, trackNumber int, secret string) string {
	return fmt.Sprintf("/callbacks/suno?projectId=%s&trackNumber=%d&secret=%s", projectID, trackNumber, secret)
}

func completeCallback(taskID string, durations ...float64) string {
	variants := make([]map[string]interface{}, 0, len(durations))
	for i, d := range durations {
		variants = append(variants, map[string]interface{}{
			"id":        fmt.Sprintf("%s-v%d", taskID, i),
			"audio_url": fmt.Sprintf("https://cdn.example.com/%s-%d.mp3", taskID, i),
			"image_url": fmt.Sprintf("https://cdn.example.com/%s-%d.jpg", taskID, i),
			"duration":  d,
		})
	}
	body, _ := json.Marshal(map[string]interface{}{
		"code": 200,
		"msg":  "success",
		"data": map[string]interface{}{
			"callbackType": "complete",
			"task_id":      taskID,
			"data":         variants,
		},
	})
	return string(body)
}

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/config"
	"github.com/clipforge/api/internal/handler"
	"github.com/clipforge/api/internal/media"
	"github.com/clipforge/api/internal/middleware"
	"github.com/clipforge/api/internal/orchestrator"
	"github.com/clipforge/api/internal/service"
	"github.com/clipforge/api/internal/store"
	ws "github.com/clipforge/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.RedisStore
}

// setupApp creates a Fiber app identical to main.go but with unconfigured
// external clients, so services use mock fallbacks. Requires a local Redis;
// skips otherwise.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost — must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available on localhost:6379: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// External clients — all unconfigured so the pipeline uses mock fallbacks
	videoClient := client.NewVideoClient(&config.VideoConfig{})

	jobStore := store.NewRedisStore(redisClient, time.Minute)

	failer := orchestrator.NewFailer(jobStore, nil, hub)
	publisher := orchestrator.NewPublisher(jobStore, nil, nil, failer, hub, time.Minute)
	scheduler := orchestrator.NewMergeScheduler(
		jobStore,
		media.NewHTTPFetcher(time.Second),
		media.NewFFmpegMerger("ffmpeg"),
		publisher,
		failer,
		hub,
		1,
		t.TempDir(),
		time.Second,
	)
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	correlator := orchestrator.NewCorrelator(jobStore, scheduler, failer, hub)
	dispatcher := orchestrator.NewDispatcher(jobStore, videoClient, failer, hub, "http://localhost:8000/callbacks/video", 0)
	_ = dispatcher // dispatch runs in the asynq worker, which e2e does not start

	videoService := service.NewVideoService(jobStore, asynqClient)

	videoHandler := handler.NewVideoHandler(videoService, nil, validate)
	callbackHandler := handler.NewCallbackHandler(correlator, validate, "")

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"store":    jobStore.Available(),
				"groq":     false,
				"video":    false,
				"r2":       false,
				"airtable": false,
			},
		})
	})

	app.Post("/callbacks/video", rateLimiter.CallbackLimit(10000), callbackHandler.Render)

	// API routes (authenticated); very high rate limits so tests don't block
	api := app.Group("/api", authMiddleware.Authenticate())
	video := api.Group("/video")
	video.Post("/generate", rateLimiter.GenerateLimit(10000), videoHandler.Generate)
	video.Post("/from-record/:recordId", rateLimiter.GenerateLimit(10000), videoHandler.FromRecord)
	video.Get("/status/:jobId", videoHandler.Status)
	video.Get("/result/:jobId", videoHandler.Result)

	return &testApp{app: app, store: jobStore}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := middleware.UserClaims{
		UserID: "test-user-123",
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "clipforge-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
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
